package serialcan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/samsamfire/gocanbus/pkg/can"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Serial CAN adapters speaking the simple framing used by python-can :
//
//	0xAA | timestamp (4 bytes LE, ms) | DLC | id (4 bytes LE) | data | 0xBB
//
// The extended and remote flags are carried in the upper bits of the id,
// exactly like [can.Frame].

func init() {
	can.RegisterInterface("serialcan", NewBus)
	can.RegisterInterface("serial", NewBus)
}

const (
	startOfFrame byte = 0xAA
	endOfFrame   byte = 0xBB

	DefaultBaudrate     = 115200
	DefaultFrameTimeout = 100 * time.Millisecond
)

var ErrFraming = errors.New("serial can framing error")

type port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
}

// Replaced in tests
var openPort = func(name string, mode *serial.Mode) (port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type Bus struct {
	*can.Base
	port  port
	start time.Time
}

type reader struct {
	mu           sync.Mutex
	port         port
	frameTimeout time.Duration
	logger       *log.Entry
}

// NewBus opens the serial port given as channel, e.g. "/dev/ttyUSB0" or "COM3"
func NewBus(channel string, config can.Config) (can.Bus, error) {
	if channel == "" {
		return nil, fmt.Errorf("%w : serial port name is required", can.ErrInvalidConfiguration)
	}
	baudrate, err := config.Int("baudrate", DefaultBaudrate)
	if err != nil {
		return nil, err
	}
	if baudrate <= 0 {
		return nil, fmt.Errorf("%w : baudrate %v", can.ErrInvalidConfiguration, baudrate)
	}
	frameTimeout, err := config.Duration("timeout", DefaultFrameTimeout)
	if err != nil {
		return nil, err
	}
	p, err := openPort(channel, &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		config.Logger.WithError(err).WithField("port", channel).Error("failed to open serial port")
		return nil, fmt.Errorf("failed to open serial port %v : %w", channel, err)
	}
	r := &reader{port: p, frameTimeout: frameTimeout}
	bus := &Bus{
		Base: can.NewBase(channel, config.Logger,
			can.WithTeardown(p.Close),
			can.WithReceiver(r.recv),
		),
		port:  p,
		start: time.Now(),
	}
	r.logger = bus.Logger()
	can.Guard(bus, bus.Base)
	return bus, nil
}

// Encode frame using the serial framing
func Encode(frame can.Frame, timestamp uint32) []byte {
	dlc := min(frame.DLC, 8)
	buf := make([]byte, 0, 11+dlc)
	buf = append(buf, startOfFrame)
	buf = binary.LittleEndian.AppendUint32(buf, timestamp)
	buf = append(buf, dlc)
	buf = binary.LittleEndian.AppendUint32(buf, frame.ID)
	buf = append(buf, frame.Data[:dlc]...)
	return append(buf, endOfFrame)
}

func (bus *Bus) Send(frame can.Frame, timeout time.Duration) error {
	if err := bus.CheckActive(); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	timestamp := uint32(time.Since(bus.start).Milliseconds())
	buf := Encode(frame, timestamp)
	n, err := bus.port.Write(buf)
	if err != nil {
		return fmt.Errorf("failed to write to serial port : %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("incomplete write : wrote %d of %d bytes", n, len(buf))
	}
	return nil
}

func (r *reader) readFull(buf []byte) error {
	for read := 0; read < len(buf); {
		n, err := r.port.Read(buf[read:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w : incomplete frame", ErrFraming)
		}
		read += n
	}
	return nil
}

// recv waits up to timeout for a start of frame, the rest of the frame
// must then follow within the frame timeout.
func (r *reader) recv(timeout time.Duration) (*can.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timeout < 0 {
		timeout = serial.NoTimeout
	}
	if err := r.port.SetReadTimeout(timeout); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	header := make([]byte, 1)
	// Skip line noise until a start of frame
	for {
		n, err := r.port.Read(header)
		if err != nil {
			return nil, fmt.Errorf("failed to read from serial port : %w", err)
		}
		if n == 0 {
			return nil, can.ErrTimeout
		}
		if header[0] == startOfFrame {
			break
		}
		r.logger.Debugf("skipping unexpected byte 0x%02X", header[0])
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, can.ErrTimeout
			}
			if err := r.port.SetReadTimeout(remaining); err != nil {
				return nil, err
			}
		}
	}
	if err := r.port.SetReadTimeout(r.frameTimeout); err != nil {
		return nil, err
	}
	// timestamp, dlc, id
	fixed := make([]byte, 9)
	if err := r.readFull(fixed); err != nil {
		return nil, err
	}
	dlc := fixed[4]
	if dlc > 8 {
		return nil, fmt.Errorf("%w : dlc %v", ErrFraming, dlc)
	}
	frame := can.NewFrame(binary.LittleEndian.Uint32(fixed[5:9]), 0, dlc)
	rest := make([]byte, int(dlc)+1)
	if err := r.readFull(rest); err != nil {
		return nil, err
	}
	if rest[dlc] != endOfFrame {
		return nil, fmt.Errorf("%w : missing end of frame", ErrFraming)
	}
	copy(frame.Data[:], rest[:dlc])
	return &frame, nil
}
