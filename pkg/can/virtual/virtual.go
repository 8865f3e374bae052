package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/samsamfire/gocanbus/pkg/can"
)

// Virtual CAN bus implementation with TCP primarily used for testing
// This needs a broker server to send CAN frames to all connected clients
// More information : https://github.com/windelbouwman/virtualcan

func init() {
	can.RegisterInterface("virtual", NewBus)
	can.RegisterInterface("virtualcan", NewBus)
}

const (
	DefaultDialTimeout  = 2 * time.Second
	DefaultWriteTimeout = 10 * time.Millisecond
	frameSize           = 14
)

type Bus struct {
	*can.Base
	client *client
}

// Connection to the broker, shared by the bus and its receiver
type client struct {
	mu         sync.Mutex
	conn       net.Conn
	receiveOwn bool
	own        []can.Frame
}

// NewBus connects to the broker at channel, e.g. "localhost:18000".
// Parameters : receive_own (bool), dial_timeout (duration).
func NewBus(channel string, config can.Config) (can.Bus, error) {
	receiveOwn, err := config.Bool("receive_own", false)
	if err != nil {
		return nil, err
	}
	dialTimeout, err := config.Duration("dial_timeout", DefaultDialTimeout)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("tcp", channel, dialTimeout)
	if err != nil {
		config.Logger.WithError(err).Error("failed to connect to virtual can broker")
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		err := tcpConn.SetNoDelay(true)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	c := &client{conn: conn, receiveOwn: receiveOwn}
	bus := &Bus{
		Base: can.NewBase(channel, config.Logger,
			can.WithTeardown(conn.Close),
			can.WithReceiver(c.recv),
		),
		client: c,
	}
	can.Guard(bus, bus.Base)
	return bus, nil
}

// Helper function for serializing a CAN frame into the expected binary format
func serializeFrame(frame can.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	err := binary.Write(buffer, binary.BigEndian, frame)
	if err != nil {
		return nil, err
	}
	dataBytes := buffer.Bytes()
	frameBytes := make([]byte, 4, 4+len(dataBytes))
	binary.BigEndian.PutUint32(frameBytes, uint32(len(dataBytes)))
	return append(frameBytes, dataBytes...), nil
}

// Helper function for deserializing a CAN frame from expected binary format
func deserializeFrame(buffer []byte) (*can.Frame, error) {
	var frame can.Frame
	err := binary.Read(bytes.NewReader(buffer), binary.BigEndian, &frame)
	if err != nil {
		return nil, err
	}
	return &frame, nil
}

func (bus *Bus) Send(frame can.Frame, timeout time.Duration) error {
	if err := bus.CheckActive(); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	frameBytes, err := serializeFrame(frame)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	c := bus.client
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err = c.conn.Write(frameBytes); err != nil {
		return err
	}
	// Local loopback
	if c.receiveOwn {
		c.own = append(c.own, frame)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Receive new CAN message, own frames first
func (c *client) recv(timeout time.Duration) (*can.Frame, error) {
	c.mu.Lock()
	if len(c.own) > 0 {
		frame := c.own[0]
		c.own = c.own[1:]
		c.mu.Unlock()
		return &frame, nil
	}
	c.mu.Unlock()

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	_ = c.conn.SetReadDeadline(deadline)
	headerBytes := make([]byte, 4)
	n, err := io.ReadFull(c.conn, headerBytes)
	if n == 0 && isTimeout(err) {
		return nil, can.ErrTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("error deserializing : expected %v, got %v, err : %w", 4, n, err)
	}
	length := binary.BigEndian.Uint32(headerBytes)
	if length != frameSize {
		return nil, fmt.Errorf("error deserializing : unexpected frame length %v", length)
	}
	// The rest of a frame is expected right after its header
	_ = c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	frameBytes := make([]byte, length)
	n, err = io.ReadFull(c.conn, frameBytes)
	if err != nil {
		return nil, fmt.Errorf("error deserializing : expected %v, got %v, err : %w", length, n, err)
	}
	return deserializeFrame(frameBytes)
}
