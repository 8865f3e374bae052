// Package version holds the build metadata of the canbus tool.
// Values are set at build time :
//
//	go build -ldflags "-X 'github.com/samsamfire/gocanbus/internal/version.Version=1.0.0'" ./cmd/canbus
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "0.0.0"
	BuildDate = "1970-01-01T00:00:00Z"
	GitCommit = ""
	GoVersion = runtime.Version()
)

// Short returns the version, falling back to the module version
// recorded by go install when no version was injected
func Short() string {
	if Version != "0.0.0" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

func Long() string {
	commit := GitCommit
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("%s (commit %s, built %s, %s %s/%s)",
		Short(), commit, BuildDate, GoVersion, runtime.GOOS, runtime.GOARCH)
}
