//go:build darwin || freebsd || linux

package pcan

import (
	"runtime"

	"github.com/ebitengine/purego"
)

var defaultLibrary = func() string {
	if runtime.GOOS == "darwin" {
		return "libPCBUSB.dylib"
	}
	return "libpcanbasic.so"
}()

func loadProcs(path string) (*procs, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	p := &procs{}
	bind(handle, "CAN_Initialize", &p.initialize)
	bind(handle, "CAN_Uninitialize", &p.uninitialize)
	bind(handle, "CAN_Read", &p.read)
	bind(handle, "CAN_Write", &p.write)
	bind(handle, "CAN_GetStatus", &p.getStatus)
	bind(handle, "CAN_GetErrorText", &p.getErrorText)
	return p, nil
}

// bind leaves fptr nil when the symbol is missing, calls then fail with a driver fault
func bind(handle uintptr, name string, fptr any) {
	sym, err := purego.Dlsym(handle, name)
	if err != nil || sym == 0 {
		return
	}
	purego.RegisterFunc(fptr, sym)
}
