// Package data bundles the default runtime configuration into the binary so
// a bare `darkglass` invocation works without any files on disk.
package data

import (
	"embed"
)

//go:embed defaultPolicy.yaml
var Assets embed.FS

// DefaultPolicyName is the path of the built-in policy inside Assets.
const DefaultPolicyName = "defaultPolicy.yaml"
