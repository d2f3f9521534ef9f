package internal

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FastHash is a high-performance non-cryptographic hash function suitable
// for cache keys and diagnostic identifiers where cryptographic security is
// not required.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}

// Seed derives a deterministic render seed from a challenge id, so that the
// same challenge always materializes into the same media.
func Seed(text string) int64 {
	return int64(xxhash.Sum64String(text))
}
