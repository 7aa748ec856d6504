// Package version carries build metadata stamped at link time.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version line printed by `voicehook version`.
func String() string {
	return fmt.Sprintf("voicehook %s (commit=%s, date=%s, go=%s)", Version, Commit, Date, runtime.Version())
}
