package loopback

import (
	"sync"
	"testing"
	"time"

	"github.com/samsamfire/gocanbus/pkg/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, channel string, opts ...can.Option) can.Bus {
	t.Helper()
	bus, err := can.NewBus("loopback", channel, opts...)
	require.Nil(t, err)
	t.Cleanup(bus.Shutdown)
	return bus
}

func TestLoopbackExchange(t *testing.T) {
	a := open(t, t.Name())
	b := open(t, t.Name())
	c := open(t, "other")

	frame := can.NewFrame(0x123, 0, 1)
	frame.Data[0] = 0x42
	require.Nil(t, a.Send(frame, 0))

	received, err := b.Recv(100 * time.Millisecond)
	require.Nil(t, err)
	assert.Equal(t, frame, *received)

	_, err = a.Recv(0)
	assert.ErrorIs(t, err, can.ErrTimeout)
	_, err = c.Recv(0)
	assert.ErrorIs(t, err, can.ErrTimeout)
}

func TestLoopbackReceiveOwn(t *testing.T) {
	a := open(t, t.Name(), can.WithParam("receive_own", true))
	frame := can.NewFrame(0x10, 0, 0)
	require.Nil(t, a.Send(frame, 0))
	received, err := a.Recv(0)
	require.Nil(t, err)
	assert.Equal(t, frame, *received)
}

func TestLoopbackQueueFull(t *testing.T) {
	a := open(t, t.Name())
	open(t, t.Name(), can.WithParam("queue_size", 1))

	require.Nil(t, a.Send(can.NewFrame(0x1, 0, 0), 0))
	assert.ErrorIs(t, a.Send(can.NewFrame(0x2, 0, 0), 0), can.ErrTimeout)
	assert.ErrorIs(t, a.Send(can.NewFrame(0x3, 0, 0), 5*time.Millisecond), can.ErrTimeout)
}

func TestLoopbackInvalid(t *testing.T) {
	_, err := can.NewBus("loopback", t.Name(), can.WithParam("queue_size", 0))
	assert.ErrorIs(t, err, can.ErrInvalidConfiguration)
	a := open(t, t.Name())
	assert.ErrorIs(t, a.Send(can.NewFrame(0x800, 0, 0), 0), can.ErrInvalidFrame)
}

func TestLoopbackShutdown(t *testing.T) {
	a := open(t, t.Name())
	b := open(t, t.Name())
	assert.Equal(t, 2, Endpoints(t.Name()))

	var wg sync.WaitGroup
	wg.Add(1)
	var recvErr error
	go func() {
		defer wg.Done()
		_, recvErr = b.Recv(-1)
	}()
	time.Sleep(10 * time.Millisecond)
	b.Shutdown()
	wg.Wait()
	assert.ErrorIs(t, recvErr, can.ErrBusShutdown)
	assert.Equal(t, 1, Endpoints(t.Name()))

	// Sending to a network without peers is fine
	assert.Nil(t, a.Send(can.NewFrame(0x1, 0, 0), 0))
	a.Shutdown()
	assert.Equal(t, 0, Endpoints(t.Name()))
	assert.ErrorIs(t, a.Send(can.NewFrame(0x1, 0, 0), 0), can.ErrBusShutdown)
}
