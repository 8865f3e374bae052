package can

import (
	"fmt"
	"time"
)

const CanRtrFlag uint32 = 0x40000000
const CanEffFlag uint32 = 0x80000000
const CanSffMask uint32 = 0x000007FF
const CanEffMask uint32 = 0x1FFFFFFF

// CAN bus errors
const (
	CanErrorTxWarning   = 0x0001 // CAN transmitter warning
	CanErrorTxPassive   = 0x0002 // CAN transmitter passive
	CanErrorTxBusOff    = 0x0004 // CAN transmitter bus off
	CanErrorTxOverflow  = 0x0008 // CAN transmitter overflow
	CanErrorRxWarning   = 0x0100 // CAN receiver warning
	CanErrorRxPassive   = 0x0200 // CAN receiver passive
	CanErrorRxOverflow  = 0x0800 // CAN receiver overflow
	CanErrorWarnPassive = 0x0303 // Combination
)

// A CAN frame
// The identifier carries the extended and remote request flags
// in its upper bits, the same way socketcan does.
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [8]byte
}

func NewFrame(id uint32, flags uint8, dlc uint8) Frame {
	return Frame{ID: id, Flags: flags, DLC: dlc}
}

// Identifier without flag bits
func (f Frame) Ident() uint32 {
	if f.Extended() {
		return f.ID & CanEffMask
	}
	return f.ID & CanSffMask
}

func (f Frame) Extended() bool {
	return f.ID&CanEffFlag != 0
}

func (f Frame) Remote() bool {
	return f.ID&CanRtrFlag != 0
}

// Validate returns [ErrInvalidFrame] if the frame can't be put on a classical CAN bus.
func (f Frame) Validate() error {
	if f.DLC > 8 {
		return fmt.Errorf("%w : dlc %v", ErrInvalidFrame, f.DLC)
	}
	id := f.ID &^ (CanEffFlag | CanRtrFlag)
	if f.Extended() && id > CanEffMask {
		return fmt.Errorf("%w : extended id %x", ErrInvalidFrame, id)
	}
	if !f.Extended() && id > CanSffMask {
		return fmt.Errorf("%w : standard id %x", ErrInvalidFrame, id)
	}
	return nil
}

func (f Frame) String() string {
	return fmt.Sprintf("%03X [%d] % X", f.Ident(), f.DLC, f.Data[:min(f.DLC, 8)])
}

// Lifecycle state of a bus instance
type State uint8

const (
	StateActive State = iota
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateShutDown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// A CAN Bus interface
// Every backend satisfies it, usually by embedding a [*Base] which
// provides the lifecycle part (Recv, Shutdown, Channel, State).
// Callers own the returned bus and must call Shutdown, directly or through [Use].
// A bus is not safe for concurrent use.
type Bus interface {
	Send(frame Frame, timeout time.Duration) error // Send a frame on the bus
	Recv(timeout time.Duration) (*Frame, error)    // Receive one frame
	Shutdown()                                     // Release the bus, idempotent
	Channel() string                               // Channel the bus was opened on
	State() State                                  // Current lifecycle state
}

// Use calls fn with bus and shuts the bus down when fn returns,
// whether it returns an error or panics.
func Use(bus Bus, fn func(Bus) error) error {
	defer bus.Shutdown()
	return fn(bus)
}
