package can

import (
	"time"
)

// Minimal backend used throughout the tests of this package
type testBus struct {
	*Base
	sent []Frame
}

func (b *testBus) Send(frame Frame, timeout time.Duration) error {
	if err := b.CheckActive(); err != nil {
		return err
	}
	b.sent = append(b.sent, frame)
	return nil
}

func newTestBus(channel string, opts ...BaseOption) *testBus {
	return &testBus{Base: NewBase(channel, nil, opts...)}
}

// registerTestInterface declares and registers an interface for the duration of a test
func registerTestInterface(name string, newInterface NewInterfaceFunc) func() {
	registryMu.Lock()
	interfaceTable[name] = Locator{Package: modulePath + name, Type: "Bus"}
	registryMu.Unlock()
	RegisterInterface(name, newInterface)
	return func() {
		registryMu.Lock()
		defer registryMu.Unlock()
		delete(interfaceTable, name)
		delete(interfaceRegistry, name)
	}
}
