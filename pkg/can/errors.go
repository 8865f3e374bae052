package can

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedInterface = errors.New("unsupported interface")
	ErrBackendNotLinked     = errors.New("backend is not linked into this binary")
	ErrMissingInterface     = errors.New("no interface specified")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNotImplemented       = errors.New("not implemented by this backend")
	ErrBusShutdown          = errors.New("bus is shut down")
	ErrNotInitialized       = errors.New("channel is not initialized")
	ErrInitialization       = errors.New("initialization failed")
	ErrDriverFault          = errors.New("driver call failed")
	ErrInvalidFrame         = errors.New("invalid frame")
	ErrTimeout              = errors.New("operation timed out")
)

// InitializationError is returned when the native initialization of a
// channel returned a non zero status. Use [errors.As] to get the raw code.
type InitializationError struct {
	Code uint32 // raw native status
	Text string // text of the status, as given by the driver
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%v : %s [error code 0x%X]", ErrInitialization, e.Text, e.Code)
}

func (e *InitializationError) Unwrap() error {
	return ErrInitialization
}

// DriverFault records a failure of the native call itself, as opposed
// to the call returning a non zero status.
type DriverFault struct {
	Op  string // native entry point e.g. "CAN_Read"
	Err error  // underlying failure
}

func (e *DriverFault) Error() string {
	return fmt.Sprintf("%v : %s : %v", ErrDriverFault, e.Op, e.Err)
}

func (e *DriverFault) Unwrap() error {
	return e.Err
}

func (e *DriverFault) Is(target error) bool {
	return target == ErrDriverFault
}

// StatusError is a non zero native status returned by a runtime operation
// (send, receive, status query).
type StatusError struct {
	Op   string
	Code uint32
	Text string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed : %s [error code 0x%X]", e.Op, e.Text, e.Code)
}
