package pcan

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/samsamfire/gocanbus/pkg/can"
)

var ErrLibraryUnavailable = errors.New("pcan basic library is unavailable")

// Extra parameters of CAN_Initialize, only used by non plug and play hardware
type InitParams struct {
	HardwareType HardwareType
	IOPort       uint32
	Interrupt    uint16
}

// Driver is the narrow boundary to the PCAN-Basic entry points.
// Every method returns the native status. The error is reserved to
// failures of the call itself and is then a [*can.DriverFault].
type Driver interface {
	Initialize(channel Handle, bitrate Baudrate, params InitParams) (Status, error)
	Uninitialize(channel Handle) (Status, error)
	Read(channel Handle) (Status, Msg, Timestamp, error)
	Write(channel Handle, msg Msg) (Status, error)
	GetStatus(channel Handle) (Status, error)
	GetErrorText(code Status, language Language) (Status, string, error)
}

const errorTextSize = 256

// Entry points resolved from the library, nil when the symbol is missing
type procs struct {
	initialize   func(channel Handle, bitrate Baudrate, hwType HardwareType, ioPort uint32, interrupt uint16) Status
	uninitialize func(channel Handle) Status
	read         func(channel Handle, msg *Msg, timestamp *Timestamp) Status
	write        func(channel Handle, msg *Msg) Status
	getStatus    func(channel Handle) Status
	getErrorText func(code Status, language Language, buffer *byte) Status
}

type library struct {
	path  string
	procs *procs
}

var (
	librariesMu sync.Mutex
	libraries   = map[string]*library{}
)

// OpenLibrary loads the PCAN-Basic library found at path, or the platform
// default when path is empty. A library is loaded once and stays loaded
// for the lifetime of the process.
func OpenLibrary(path string) (Driver, error) {
	if path == "" {
		path = defaultLibrary
	}
	librariesMu.Lock()
	defer librariesMu.Unlock()
	if lib, ok := libraries[path]; ok {
		return lib, nil
	}
	p, err := loadProcs(path)
	if err != nil {
		return nil, fmt.Errorf("%w : %v : %v", ErrLibraryUnavailable, path, err)
	}
	lib := &library{path: path, procs: p}
	libraries[path] = lib
	return lib, nil
}

// call runs a native entry point, converting a panic of the call
// mechanism into a driver fault
func call(op string, available bool, fn func() Status) (status Status, err error) {
	if !available {
		return StatusUnknown, &can.DriverFault{Op: op, Err: errors.New("symbol not found")}
	}
	defer func() {
		if r := recover(); r != nil {
			status = StatusUnknown
			err = &can.DriverFault{Op: op, Err: fmt.Errorf("%v", r)}
		}
	}()
	return fn(), nil
}

func (l *library) Initialize(channel Handle, bitrate Baudrate, params InitParams) (Status, error) {
	return call("CAN_Initialize", l.procs.initialize != nil, func() Status {
		return l.procs.initialize(channel, bitrate, params.HardwareType, params.IOPort, params.Interrupt)
	})
}

func (l *library) Uninitialize(channel Handle) (Status, error) {
	return call("CAN_Uninitialize", l.procs.uninitialize != nil, func() Status {
		return l.procs.uninitialize(channel)
	})
}

func (l *library) Read(channel Handle) (Status, Msg, Timestamp, error) {
	var msg Msg
	var timestamp Timestamp
	status, err := call("CAN_Read", l.procs.read != nil, func() Status {
		return l.procs.read(channel, &msg, &timestamp)
	})
	return status, msg, timestamp, err
}

func (l *library) Write(channel Handle, msg Msg) (Status, error) {
	return call("CAN_Write", l.procs.write != nil, func() Status {
		return l.procs.write(channel, &msg)
	})
}

func (l *library) GetStatus(channel Handle) (Status, error) {
	return call("CAN_GetStatus", l.procs.getStatus != nil, func() Status {
		return l.procs.getStatus(channel)
	})
}

func (l *library) GetErrorText(code Status, language Language) (Status, string, error) {
	buffer := make([]byte, errorTextSize)
	status, err := call("CAN_GetErrorText", l.procs.getErrorText != nil, func() Status {
		return l.procs.getErrorText(code, language, &buffer[0])
	})
	if end := bytes.IndexByte(buffer, 0); end >= 0 {
		buffer = buffer[:end]
	}
	return status, string(buffer), err
}
