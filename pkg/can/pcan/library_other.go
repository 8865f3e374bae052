//go:build !darwin && !freebsd && !linux && !windows

package pcan

import (
	"fmt"
	"runtime"
)

const defaultLibrary = ""

func loadProcs(path string) (*procs, error) {
	return nil, fmt.Errorf("no loader for %v", runtime.GOOS)
}
