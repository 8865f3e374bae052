package can

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Receives frames dispatched by a [Manager]
type FrameListener interface {
	Handle(frame Frame)
}

// Adapter to use an ordinary function as a [FrameListener]
type FrameListenerFunc func(frame Frame)

func (f FrameListenerFunc) Handle(frame Frame) {
	f(frame)
}

type subscription struct {
	ident    uint32
	mask     uint32
	listener FrameListener
}

// Bus manager is a wrapper around a [Bus]
// It receives frames in the background and calls the listeners
// subscribed to their identifier.
type Manager struct {
	mu            sync.Mutex
	bus           Bus
	logger        *log.Entry
	subscriptions []subscription
	pollTimeout   time.Duration
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	err           error
}

func NewManager(bus Bus, logger *log.Entry) *Manager {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Manager{
		bus:         bus,
		logger:      logger.WithField("channel", bus.Channel()),
		pollTimeout: 100 * time.Millisecond,
	}
}

func (bm *Manager) Bus() Bus {
	return bm.bus
}

// Subscribe listener to frames whose identifier (flags included)
// matches ident on the bits set in mask.
func (bm *Manager) Subscribe(ident uint32, mask uint32, listener FrameListener) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.subscriptions = append(bm.subscriptions, subscription{ident: ident & mask, mask: mask, listener: listener})
}

// Handle dispatches frame to the matching listeners
func (bm *Manager) Handle(frame Frame) {
	bm.mu.Lock()
	listeners := make([]FrameListener, 0, 1)
	for _, sub := range bm.subscriptions {
		if frame.ID&sub.mask == sub.ident {
			listeners = append(listeners, sub.listener)
		}
	}
	bm.mu.Unlock()
	for _, listener := range listeners {
		listener.Handle(frame)
	}
}

// Send a CAN message
// Limited error handling
func (bm *Manager) Send(frame Frame, timeout time.Duration) error {
	err := bm.bus.Send(frame, timeout)
	if err != nil {
		bm.logger.Warnf("failed to send %v : %v", frame, err)
	}
	return err
}

// Start receiving in the background until ctx is done or [Manager.Stop] is called.
// If reception stops on a bus error, Start can be called again.
func (bm *Manager) Start(ctx context.Context) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.cancel != nil {
		return
	}
	ctx, bm.cancel = context.WithCancel(ctx)
	bm.err = nil
	bm.wg.Add(1)
	go bm.handleReception(ctx)
}

// Stop the reception, the bus itself is left untouched
func (bm *Manager) Stop() {
	bm.mu.Lock()
	cancel := bm.cancel
	bm.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	bm.wg.Wait()
	bm.mu.Lock()
	bm.cancel = nil
	bm.mu.Unlock()
}

// Error that stopped the reception, if any
func (bm *Manager) Err() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.err
}

func (bm *Manager) handleReception(ctx context.Context) {
	defer bm.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, err := bm.bus.Recv(bm.pollTimeout)
		if errors.Is(err, ErrTimeout) {
			// No message received, this is OK
			continue
		}
		if err != nil {
			bm.logger.WithError(err).Error("listening routine has closed")
			bm.mu.Lock()
			bm.err = err
			// Allow a later Start
			if bm.cancel != nil {
				bm.cancel()
				bm.cancel = nil
			}
			bm.mu.Unlock()
			return
		}
		bm.Handle(*frame)
	}
}
