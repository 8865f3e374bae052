//go:build linux

package socketcan

import (
	"net"
	"testing"
	"time"

	sockcan "github.com/brutella/can"
	"github.com/samsamfire/gocanbus/pkg/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiverQueue(t *testing.T) {
	r := &receiver{frames: make(chan can.Frame, 1), done: make(chan struct{})}
	r.Handle(sockcan.Frame{ID: 0x10, Length: 2, Data: [8]uint8{1, 2}})
	r.Handle(sockcan.Frame{ID: 0x20})

	frame, err := r.recv(0)
	require.Nil(t, err)
	assert.EqualValues(t, 0x10, frame.ID)
	assert.EqualValues(t, 2, frame.DLC)

	_, err = r.recv(5 * time.Millisecond)
	assert.ErrorIs(t, err, can.ErrTimeout)

	r.stop(nil)
	_, err = r.recv(-1)
	assert.ErrorIs(t, err, can.ErrBusShutdown)
}

func TestNewBusInvalid(t *testing.T) {
	_, err := can.NewBus("socketcan", "vcan0", can.WithParam("receive_own", true))
	assert.ErrorIs(t, err, can.ErrInvalidConfiguration)
	_, err = can.NewBus("socketcan", "vcan0", can.WithParam("queue_size", -1))
	assert.ErrorIs(t, err, can.ErrInvalidConfiguration)
}

// Requires a vcan0 interface, e.g. ip link add dev vcan0 type vcan
func TestSendRecvVcan(t *testing.T) {
	if _, err := net.InterfaceByName("vcan0"); err != nil {
		t.Skip("vcan0 is not available")
	}
	bus1, err := can.NewBus("socketcan", "vcan0")
	require.Nil(t, err)
	defer bus1.Shutdown()
	bus2, err := can.NewBus("socketcan", "vcan0")
	require.Nil(t, err)
	defer bus2.Shutdown()

	frame := can.Frame{ID: 0x111, DLC: 8, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	require.Nil(t, bus1.Send(frame, 0))
	received, err := bus2.Recv(time.Second)
	require.Nil(t, err)
	assert.Equal(t, frame, *received)
}
