package can

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

const modulePath = "github.com/samsamfire/gocanbus/pkg/can/"

// Where the implementation of an interface lives
type Locator struct {
	Package string // import path of the backend package
	Type    string // type implementing [Bus] inside of Package
}

func (l Locator) String() string {
	return l.Package + "." + l.Type
}

// Constructor of a backend. Any error is returned as is to the caller of [NewBus].
type NewInterfaceFunc func(channel string, config Config) (Bus, error)

// A resolved backend
type Backend struct {
	Name    string
	Locator Locator
	New     NewInterfaceFunc
}

// Interfaces known to this module. Adding a backend means adding
// an entry here and a package registering itself with [RegisterInterface].
var interfaceTable = map[string]Locator{
	"pcan":       {Package: modulePath + "pcan", Type: "Bus"},
	"serialcan":  {Package: modulePath + "serialcan", Type: "Bus"},
	"serial":     {Package: modulePath + "serialcan", Type: "Bus"},
	"socketcan":  {Package: modulePath + "socketcan", Type: "Bus"},
	"virtual":    {Package: modulePath + "virtual", Type: "Bus"},
	"virtualcan": {Package: modulePath + "virtual", Type: "Bus"},
	"loopback":   {Package: modulePath + "loopback", Type: "Bus"},
}

var (
	registryMu        sync.RWMutex
	interfaceRegistry = make(map[string]NewInterfaceFunc)
)

// Register a new CAN bus interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := interfaceTable[interfaceType]; !ok {
		panic(fmt.Sprintf("can: interface %q is not declared in the interface table", interfaceType))
	}
	if newInterface == nil {
		panic(fmt.Sprintf("can: nil constructor for interface %q", interfaceType))
	}
	if _, dup := interfaceRegistry[interfaceType]; dup {
		panic(fmt.Sprintf("can: interface %q registered twice", interfaceType))
	}
	interfaceRegistry[interfaceType] = newInterface
}

// Names of all the known interfaces, whether linked or not
func Interfaces() []string {
	names := make([]string, 0, len(interfaceTable))
	for name := range interfaceTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns where interface canInterface is implemented
func Lookup(canInterface string) (Locator, error) {
	locator, ok := interfaceTable[canInterface]
	if !ok {
		return Locator{}, fmt.Errorf("%w : %v", ErrUnsupportedInterface, canInterface)
	}
	return locator, nil
}

// Resolve returns a backend that is ready to be constructed.
// It fails if the interface is unknown or if its package is not part of the binary.
func Resolve(canInterface string) (*Backend, error) {
	locator, err := Lookup(canInterface)
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	newInterface, ok := interfaceRegistry[canInterface]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w : %v (%v) : %w", ErrUnsupportedInterface, canInterface, locator, ErrBackendNotLinked)
	}
	return &Backend{Name: canInterface, Locator: locator, New: newInterface}, nil
}

// Create a new CAN bus with given interface
// The backend package must be linked, e.g. with a blank import.
func NewBus(canInterface string, channel string, opts ...Option) (Bus, error) {
	if canInterface == "" {
		return nil, ErrMissingInterface
	}
	config := NewConfig(opts...)
	config.Logger = config.Logger.WithField("interface", canInterface)
	config.Logger.WithField("channel", channel).Debug("resolving interface")
	backend, err := Resolve(canInterface)
	if err != nil {
		config.Logger.WithError(err).Error("failed to resolve interface")
		return nil, err
	}
	config.Logger.WithFields(log.Fields{"channel": channel, "backend": backend.Locator.String()}).Info("creating bus")
	return backend.New(channel, config)
}
