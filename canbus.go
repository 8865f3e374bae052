// Package canbus is the entry point of the module : it links every
// backend so that any interface name known to [can.Interfaces] can be
// created, either explicitly or from a can.ini style configuration file.
//
// Programs that only need some backends can import [can] and the backend
// packages directly instead.
package canbus

import (
	"github.com/samsamfire/gocanbus/pkg/can"
	"github.com/samsamfire/gocanbus/pkg/config"

	_ "github.com/samsamfire/gocanbus/pkg/can/loopback"
	_ "github.com/samsamfire/gocanbus/pkg/can/pcan"
	_ "github.com/samsamfire/gocanbus/pkg/can/serialcan"
	_ "github.com/samsamfire/gocanbus/pkg/can/socketcan"
	_ "github.com/samsamfire/gocanbus/pkg/can/virtual"
)

// New creates a bus on channel with the given interface e.g.
//
//	bus, err := canbus.New("pcan", "PCAN_USBBUS1", can.WithBitrate(500000))
func New(canInterface string, channel string, opts ...can.Option) (can.Bus, error) {
	return can.NewBus(canInterface, channel, opts...)
}

// NewFromConfig creates the bus described by section of the configuration
// file found by [config.Find]. Without a file, the environment is used.
// Extra opts are applied after the configuration.
func NewFromConfig(section string, opts ...can.Option) (can.Bus, error) {
	busConfig, err := config.LoadDefault(section)
	if err != nil {
		return nil, err
	}
	return NewFromBusConfig(busConfig, opts...)
}

// NewFromBusConfig creates the bus described by busConfig
func NewFromBusConfig(busConfig *config.BusConfig, opts ...can.Option) (can.Bus, error) {
	return can.NewBus(busConfig.Interface, busConfig.Channel, append(busConfig.Options(), opts...)...)
}
