package serialcan

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samsamfire/gocanbus/pkg/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakePort struct {
	mu       sync.Mutex
	rx       bytes.Buffer
	tx       bytes.Buffer
	timeouts []time.Duration
	closed   int
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rx.Len() == 0 {
		// Read timeout, as reported by go.bug.st/serial
		return 0, nil
	}
	return p.rx.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, timeout)
	return nil
}

func withPort(t *testing.T, p *fakePort) *serial.Mode {
	t.Helper()
	mode := &serial.Mode{}
	previous := openPort
	openPort = func(name string, m *serial.Mode) (port, error) {
		*mode = *m
		return p, nil
	}
	t.Cleanup(func() { openPort = previous })
	return mode
}

func TestEncode(t *testing.T) {
	frame := can.NewFrame(0x123, 0, 2)
	frame.Data = [8]byte{0x11, 0x22}
	assert.Equal(t,
		[]byte{0xAA, 0x10, 0x00, 0x00, 0x00, 0x02, 0x23, 0x01, 0x00, 0x00, 0x11, 0x22, 0xBB},
		Encode(frame, 0x10),
	)
	extended := can.NewFrame(0x1ABCDEF0|can.CanEffFlag, 0, 0)
	assert.Equal(t,
		[]byte{0xAA, 0, 0, 0, 0, 0x00, 0xF0, 0xDE, 0xBC, 0x9A, 0xBB},
		Encode(extended, 0),
	)
}

func TestNewBus(t *testing.T) {
	p := &fakePort{}
	mode := withPort(t, p)

	bus, err := can.NewBus("serialcan", "/dev/ttyUSB0", can.WithParam("baudrate", "9600"))
	require.Nil(t, err)
	assert.Equal(t, can.StateActive, bus.State())
	assert.Equal(t, "/dev/ttyUSB0", bus.Channel())
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)

	bus.Shutdown()
	bus.Shutdown()
	assert.Equal(t, 1, p.closed)
}

func TestNewBusAlias(t *testing.T) {
	withPort(t, &fakePort{})
	bus, err := can.NewBus("serial", "COM3")
	require.Nil(t, err)
	defer bus.Shutdown()
	_, ok := bus.(*Bus)
	assert.True(t, ok)
}

func TestNewBusErrors(t *testing.T) {
	withPort(t, &fakePort{})
	_, err := can.NewBus("serialcan", "")
	assert.ErrorIs(t, err, can.ErrInvalidConfiguration)
	_, err = can.NewBus("serialcan", "/dev/ttyUSB0", can.WithParam("baudrate", -1))
	assert.ErrorIs(t, err, can.ErrInvalidConfiguration)

	errOpen := errors.New("no such port")
	openPort = func(name string, m *serial.Mode) (port, error) { return nil, errOpen }
	_, err = can.NewBus("serialcan", "/dev/ttyUSB0")
	assert.ErrorIs(t, err, errOpen)
}

func TestSendRecv(t *testing.T) {
	p := &fakePort{}
	withPort(t, p)
	bus, err := can.NewBus("serialcan", "/dev/ttyUSB0")
	require.Nil(t, err)
	defer bus.Shutdown()

	frame := can.NewFrame(0x7FF|can.CanRtrFlag, 0, 3)
	frame.Data = [8]byte{1, 2, 3}
	require.Nil(t, bus.Send(frame, 0))

	// Loop what was written back into the receive side
	p.rx.Write(p.tx.Bytes())
	received, err := bus.Recv(10 * time.Millisecond)
	require.Nil(t, err)
	assert.Equal(t, frame, *received)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, DefaultFrameTimeout}, p.timeouts)

	assert.ErrorIs(t, bus.Send(can.NewFrame(0x1, 0, 9), 0), can.ErrInvalidFrame)
}

func TestRecvErrors(t *testing.T) {
	p := &fakePort{}
	withPort(t, p)
	bus, err := can.NewBus("serialcan", "/dev/ttyUSB0", can.WithParam("timeout", "20ms"))
	require.Nil(t, err)
	defer bus.Shutdown()

	_, err = bus.Recv(0)
	assert.ErrorIs(t, err, can.ErrTimeout)

	_, err = bus.Recv(-1)
	assert.ErrorIs(t, err, can.ErrTimeout)
	assert.Equal(t, serial.NoTimeout, p.timeouts[1])

	// Noise without a start of frame
	p.rx.Write([]byte{0x00})
	_, err = bus.Recv(0)
	assert.ErrorIs(t, err, can.ErrTimeout)

	p.rx.Write([]byte{0xAA, 0, 0, 0, 0, 2, 0x10, 0, 0, 0, 0x01})
	_, err = bus.Recv(0)
	assert.ErrorIs(t, err, ErrFraming)

	p.rx.Write([]byte{0xAA, 0, 0, 0, 0, 1, 0x10, 0, 0, 0, 0x01, 0xCC})
	_, err = bus.Recv(0)
	assert.ErrorIs(t, err, ErrFraming)

	bus.Shutdown()
	_, err = bus.Recv(0)
	assert.ErrorIs(t, err, can.ErrBusShutdown)
	assert.ErrorIs(t, bus.Send(can.NewFrame(0x1, 0, 0), 0), can.ErrBusShutdown)
}

func TestRecvSkipsNoise(t *testing.T) {
	p := &fakePort{}
	withPort(t, p)
	bus, err := can.NewBus("serialcan", "/dev/ttyUSB0")
	require.Nil(t, err)
	defer bus.Shutdown()

	frame := can.NewFrame(0x123, 0, 2)
	frame.Data = [8]byte{0xCA, 0xFE}
	p.rx.Write([]byte{0x00, 0x55, 0xBB})
	p.rx.Write(Encode(frame, 42))
	received, err := bus.Recv(0)
	require.Nil(t, err)
	assert.Equal(t, frame, *received)

	p.rx.Write([]byte{0x01, 0x02})
	p.rx.Write(Encode(frame, 43))
	received, err = bus.Recv(50 * time.Millisecond)
	require.Nil(t, err)
	assert.Equal(t, frame, *received)

	_, err = bus.Recv(0)
	assert.ErrorIs(t, err, can.ErrTimeout)
}

func TestManagerDispatchAfterNoise(t *testing.T) {
	p := &fakePort{}
	withPort(t, p)
	bus, err := can.NewBus("serialcan", "/dev/ttyUSB0")
	require.Nil(t, err)
	defer bus.Shutdown()

	frame := can.NewFrame(0x123, 0, 1)
	frame.Data = [8]byte{0x7F}
	p.rx.Write([]byte{0x00})
	p.rx.Write(Encode(frame, 0))

	bm := can.NewManager(bus, nil)
	var mu sync.Mutex
	var dispatched []can.Frame
	bm.Subscribe(0x123, can.CanSffMask, can.FrameListenerFunc(func(f can.Frame) {
		mu.Lock()
		defer mu.Unlock()
		dispatched = append(dispatched, f)
	}))
	bm.Start(context.Background())
	defer bm.Stop()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dispatched) == 1
	}, time.Second, time.Millisecond)
	assert.Nil(t, bm.Err())
	mu.Lock()
	assert.Equal(t, frame, dispatched[0])
	mu.Unlock()
}
