//go:build windows

package pcan

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const defaultLibrary = "PCANBasic.dll"

func loadProcs(path string) (*procs, error) {
	dll := windows.NewLazyDLL(path)
	if err := dll.Load(); err != nil {
		return nil, err
	}
	p := &procs{}
	if proc := find(dll, "CAN_Initialize"); proc != nil {
		p.initialize = func(channel Handle, bitrate Baudrate, hwType HardwareType, ioPort uint32, interrupt uint16) Status {
			r, _, _ := proc.Call(uintptr(channel), uintptr(bitrate), uintptr(hwType), uintptr(ioPort), uintptr(interrupt))
			return Status(r)
		}
	}
	if proc := find(dll, "CAN_Uninitialize"); proc != nil {
		p.uninitialize = func(channel Handle) Status {
			r, _, _ := proc.Call(uintptr(channel))
			return Status(r)
		}
	}
	if proc := find(dll, "CAN_Read"); proc != nil {
		p.read = func(channel Handle, msg *Msg, timestamp *Timestamp) Status {
			r, _, _ := proc.Call(uintptr(channel), uintptr(unsafe.Pointer(msg)), uintptr(unsafe.Pointer(timestamp)))
			return Status(r)
		}
	}
	if proc := find(dll, "CAN_Write"); proc != nil {
		p.write = func(channel Handle, msg *Msg) Status {
			r, _, _ := proc.Call(uintptr(channel), uintptr(unsafe.Pointer(msg)))
			return Status(r)
		}
	}
	if proc := find(dll, "CAN_GetStatus"); proc != nil {
		p.getStatus = func(channel Handle) Status {
			r, _, _ := proc.Call(uintptr(channel))
			return Status(r)
		}
	}
	if proc := find(dll, "CAN_GetErrorText"); proc != nil {
		p.getErrorText = func(code Status, language Language, buffer *byte) Status {
			r, _, _ := proc.Call(uintptr(code), uintptr(language), uintptr(unsafe.Pointer(buffer)))
			return Status(r)
		}
	}
	return p, nil
}

func find(dll *windows.LazyDLL, name string) *windows.LazyProc {
	proc := dll.NewProc(name)
	if proc.Find() != nil {
		return nil
	}
	return proc
}
