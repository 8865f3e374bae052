//go:build linux

package socketcan

import (
	"fmt"
	"sync"
	"time"

	sockcan "github.com/brutella/can"
	"github.com/samsamfire/gocanbus/pkg/can"
)

func init() {
	can.RegisterInterface("socketcan", NewBus)
}

const DefaultQueueSize = 256

type Bus struct {
	*can.Base
	bus *sockcan.Bus
}

// Frames published by brutella/can, buffered until Recv
type receiver struct {
	frames chan can.Frame
	done   chan struct{}
	once   sync.Once
	err    error
}

// brutella/can specific "Handle" implementation
func (r *receiver) Handle(frame sockcan.Frame) {
	select {
	case r.frames <- can.Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data}:
	default:
		// Queue is full, oldest frames are kept
	}
}

func (r *receiver) stop(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *receiver) recv(timeout time.Duration) (*can.Frame, error) {
	select {
	case frame := <-r.frames:
		return &frame, nil
	default:
	}
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case frame := <-r.frames:
		return &frame, nil
	case <-r.done:
		if r.err != nil {
			return nil, fmt.Errorf("socketcan reception stopped : %w", r.err)
		}
		return nil, can.ErrBusShutdown
	case <-expired:
		return nil, can.ErrTimeout
	}
}

// NewBus opens the socketcan interface channel, e.g. "can0" or "vcan0"
func NewBus(channel string, config can.Config) (can.Bus, error) {
	receiveOwn, err := config.Bool("receive_own", false)
	if err != nil {
		return nil, err
	}
	if receiveOwn {
		return nil, fmt.Errorf("%w : receive_own is not supported by socketcan", can.ErrInvalidConfiguration)
	}
	queueSize, err := config.Int("queue_size", DefaultQueueSize)
	if err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("%w : queue size %v", can.ErrInvalidConfiguration, queueSize)
	}
	sbus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		config.Logger.WithError(err).Error("failed to open socketcan interface")
		return nil, err
	}
	r := &receiver{frames: make(chan can.Frame, queueSize), done: make(chan struct{})}
	sbus.Subscribe(r)
	logger := config.Logger.WithField("channel", channel)
	go func() {
		err := sbus.ConnectAndPublish()
		if err != nil {
			logger.WithError(err).Debug("socketcan reception stopped")
		}
		r.stop(err)
	}()
	teardown := func() error {
		err := sbus.Disconnect()
		r.stop(nil)
		return err
	}
	bus := &Bus{
		Base: can.NewBase(channel, config.Logger, can.WithTeardown(teardown), can.WithReceiver(r.recv)),
		bus:  sbus,
	}
	can.Guard(bus, bus.Base)
	return bus, nil
}

func (bus *Bus) Send(frame can.Frame, timeout time.Duration) error {
	if err := bus.CheckActive(); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	return bus.bus.Publish(
		sockcan.Frame{
			ID:     frame.ID,
			Length: frame.DLC,
			Flags:  frame.Flags,
			Res0:   0,
			Res1:   0,
			Data:   frame.Data,
		})
}
