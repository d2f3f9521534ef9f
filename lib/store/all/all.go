// Package all is a meta-package that imports all store implementations.
//
// This is a HACK to make tests work consistently.
package all

import (
	_ "github.com/darkglass/darkglass/lib/store/bbolt"
	_ "github.com/darkglass/darkglass/lib/store/memory"
	_ "github.com/darkglass/darkglass/lib/store/valkey"
)
