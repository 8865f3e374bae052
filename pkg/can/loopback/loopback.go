package loopback

import (
	"fmt"
	"sync"
	"time"

	"github.com/samsamfire/gocanbus/pkg/can"
)

// In-memory CAN buses for tests and simulations.
// Every bus opened on the same channel name is an endpoint of the same
// network and receives the frames sent by the others.

func init() {
	can.RegisterInterface("loopback", NewBus)
}

const DefaultQueueSize = 64

type network struct {
	name      string
	endpoints map[*endpoint]struct{}
}

var (
	networksMu sync.Mutex
	networks   = map[string]*network{}
)

type endpoint struct {
	network    *network
	ch         chan can.Frame
	closed     chan struct{}
	receiveOwn bool
}

type Bus struct {
	*can.Base
	ep *endpoint
}

// NewBus attaches a new endpoint to network channel, creating it if needed.
// Parameters : receive_own (bool), queue_size (int).
func NewBus(channel string, config can.Config) (can.Bus, error) {
	receiveOwn, err := config.Bool("receive_own", false)
	if err != nil {
		return nil, err
	}
	queueSize, err := config.Int("queue_size", DefaultQueueSize)
	if err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("%w : queue size %v", can.ErrInvalidConfiguration, queueSize)
	}
	ep := attach(channel, queueSize, receiveOwn)
	bus := &Bus{
		Base: can.NewBase(channel, config.Logger,
			can.WithTeardown(ep.detach),
			can.WithReceiver(ep.recv),
		),
		ep: ep,
	}
	can.Guard(bus, bus.Base)
	return bus, nil
}

func attach(name string, queueSize int, receiveOwn bool) *endpoint {
	networksMu.Lock()
	defer networksMu.Unlock()
	n, ok := networks[name]
	if !ok {
		n = &network{name: name, endpoints: map[*endpoint]struct{}{}}
		networks[name] = n
	}
	ep := &endpoint{
		network:    n,
		ch:         make(chan can.Frame, queueSize),
		closed:     make(chan struct{}),
		receiveOwn: receiveOwn,
	}
	n.endpoints[ep] = struct{}{}
	return ep
}

// Endpoints returns the number of buses currently attached to channel
func Endpoints(channel string) int {
	networksMu.Lock()
	defer networksMu.Unlock()
	if n, ok := networks[channel]; ok {
		return len(n.endpoints)
	}
	return 0
}

func (e *endpoint) detach() error {
	networksMu.Lock()
	defer networksMu.Unlock()
	close(e.closed)
	delete(e.network.endpoints, e)
	if len(e.network.endpoints) == 0 {
		delete(networks, e.network.name)
	}
	return nil
}

func (e *endpoint) targets() []*endpoint {
	networksMu.Lock()
	defer networksMu.Unlock()
	targets := make([]*endpoint, 0, len(e.network.endpoints))
	for ep := range e.network.endpoints {
		if ep != e || e.receiveOwn {
			targets = append(targets, ep)
		}
	}
	return targets
}

func (e *endpoint) recv(timeout time.Duration) (*can.Frame, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case frame := <-e.ch:
		return &frame, nil
	default:
	}
	select {
	case frame := <-e.ch:
		return &frame, nil
	case <-e.closed:
		return nil, can.ErrBusShutdown
	case <-expired:
		return nil, can.ErrTimeout
	}
}

// Send delivers frame to every other endpoint of the network. When the
// queue of an endpoint stays full for longer than timeout, the frame is
// dropped for that endpoint and [can.ErrTimeout] is returned.
func (bus *Bus) Send(frame can.Frame, timeout time.Duration) error {
	if err := bus.CheckActive(); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	dropped := 0
	for _, target := range bus.ep.targets() {
		select {
		case target.ch <- frame:
			continue
		case <-target.closed:
			continue
		default:
		}
		if timeout <= 0 {
			dropped++
			continue
		}
		timer := time.NewTimer(timeout)
		select {
		case target.ch <- frame:
		case <-target.closed:
		case <-timer.C:
			dropped++
		}
		timer.Stop()
	}
	if dropped > 0 {
		bus.Logger().Warnf("frame %v dropped by %v endpoint(s)", frame, dropped)
		return fmt.Errorf("%w : %v receive queue(s) full", can.ErrTimeout, dropped)
	}
	return nil
}
