package can

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Internal receive primitive of a backend
type RecvFunc func(timeout time.Duration) (*Frame, error)

// Base holds the lifecycle shared by all backends.
// Backends create it once their resources are acquired and embed it,
// so that a failed construction never yields an active bus.
type Base struct {
	mu       sync.Mutex
	id       string
	channel  string
	state    State
	recv     RecvFunc
	teardown func() error
	logger   *log.Entry
	cleanup  runtime.Cleanup
	guarded  bool
}

type BaseOption func(*Base)

// Release routine called once, by the first Shutdown.
// It must not reference the bus that embeds the Base, see [Guard].
func WithTeardown(teardown func() error) BaseOption {
	return func(b *Base) { b.teardown = teardown }
}

// Receive primitive used by the default [Base.Recv]
func WithReceiver(recv RecvFunc) BaseOption {
	return func(b *Base) { b.recv = recv }
}

func NewBase(channel string, logger *log.Entry, opts ...BaseOption) *Base {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	b := &Base{
		id:      uuid.NewString(),
		channel: channel,
		state:   StateActive,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.WithFields(log.Fields{"channel": channel, "bus_id": b.id})
	b.logger.Info("bus is active")
	return b
}

func (b *Base) Channel() string {
	return b.channel
}

// Unique identifier of this instance, as found in its logs
func (b *Base) ID() string {
	return b.id
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) Logger() *log.Entry {
	return b.logger
}

// CheckActive returns [ErrBusShutdown] once the bus has been shut down
func (b *Base) CheckActive() error {
	if b.State() == StateShutDown {
		return ErrBusShutdown
	}
	return nil
}

// Default receive implementation, delegates to the receiver given by the backend.
func (b *Base) Recv(timeout time.Duration) (*Frame, error) {
	if err := b.CheckActive(); err != nil {
		return nil, err
	}
	if b.recv == nil {
		return nil, ErrNotImplemented
	}
	return b.recv(timeout)
}

// Shutdown releases the resources of the bus. Only the first call does
// something, the next ones are logged and ignored. Teardown failures are
// logged and never returned.
func (b *Base) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateShutDown {
		b.logger.Info("bus is already shut down")
		return
	}
	b.logger.Info("shutting down bus")
	if b.teardown != nil {
		if err := b.teardown(); err != nil {
			b.logger.WithError(err).Warn("error while releasing bus")
		}
	}
	b.state = StateShutDown
	if b.guarded {
		b.cleanup.Stop()
		b.guarded = false
	}
}

// Guard shuts base down if owner becomes unreachable while still active.
// This is a last resort, buses should be shut down explicitly.
func Guard[T any](owner *T, base *Base) {
	base.mu.Lock()
	defer base.mu.Unlock()
	if base.guarded || base.state == StateShutDown {
		return
	}
	base.cleanup = runtime.AddCleanup(owner, func(b *Base) {
		b.logger.Warn("bus was not shut down before being released")
		b.Shutdown()
	}, base)
	base.guarded = true
}
