// Package version holds the engine's compiled-in semantic version, used
// only in log lines — it never rides the wire (see SPEC_FULL.md §6).
package version

import "github.com/blang/semver"

// Current is the engine's build version.
var Current = semver.MustParse("0.1.0")
