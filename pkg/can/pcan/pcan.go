package pcan

import (
	"fmt"
	"time"

	"github.com/samsamfire/gocanbus/pkg/can"
	log "github.com/sirupsen/logrus"
)

func init() {
	can.RegisterInterface("pcan", NewBus)
}

const (
	DefaultBitrate      = 500000
	DefaultPollInterval = time.Millisecond
)

// Replaced in tests
var openDriver = OpenLibrary

// Bus is a CAN bus on a PEAK-System adapter, through the PCAN-Basic library.
// It owns exactly one initialized channel, released by Shutdown.
type Bus struct {
	*can.Base
	hw      *Hardware
	handle  Handle
	bitrate int
	btr     Baudrate
}

type settings struct {
	handle       Handle
	bitrate      int
	btr          Baudrate
	init         InitParams
	language     Language
	library      string
	pollInterval time.Duration
}

// parseSettings validates everything before the driver is touched
func parseSettings(channel string, config can.Config) (settings, error) {
	s := settings{bitrate: config.Bitrate}
	var err error
	if s.handle, err = ParseChannel(channel); err != nil {
		return s, err
	}
	if s.bitrate == 0 {
		s.bitrate = DefaultBitrate
	}
	lenient, err := config.Bool("lenient_bitrate", false)
	if err != nil {
		return s, err
	}
	if s.btr, err = ParseBitrate(s.bitrate); err != nil {
		if !lenient {
			return s, err
		}
		config.Logger.Warnf("unsupported bitrate %v, falling back to %v", s.bitrate, DefaultBitrate)
		s.bitrate = DefaultBitrate
		s.btr = Baud500K
	}
	hwType, err := config.Int("hw_type", int(TypeNone))
	if err != nil {
		return s, err
	}
	if hwType < 0 || hwType > int(maxHardwareType) {
		return s, fmt.Errorf("%w : unknown pcan hardware type %v", can.ErrInvalidConfiguration, hwType)
	}
	ioPort, err := config.Int("io_port", 0)
	if err != nil {
		return s, err
	}
	if ioPort < 0 || ioPort > 0xFFFF {
		return s, fmt.Errorf("%w : io port 0x%X out of range", can.ErrInvalidConfiguration, ioPort)
	}
	interrupt, err := config.Int("interrupt", 0)
	if err != nil {
		return s, err
	}
	if interrupt < 0 || interrupt > 0xFF {
		return s, fmt.Errorf("%w : interrupt %v out of range", can.ErrInvalidConfiguration, interrupt)
	}
	s.init = InitParams{HardwareType: HardwareType(hwType), IOPort: uint32(ioPort), Interrupt: uint16(interrupt)}
	language, err := config.Int("language", int(LanguageEnglish))
	if err != nil {
		return s, err
	}
	s.language = Language(language)
	if s.library, err = config.String("library", ""); err != nil {
		return s, err
	}
	if s.pollInterval, err = config.Duration("poll_interval", DefaultPollInterval); err != nil {
		return s, err
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	return s, nil
}

// NewBus is the constructor registered as "pcan". The configuration is
// validated before the PCAN-Basic library is loaded.
func NewBus(channel string, config can.Config) (can.Bus, error) {
	s, err := parseSettings(channel, config)
	if err != nil {
		return nil, err
	}
	driver, err := openDriver(s.library)
	if err != nil {
		config.Logger.WithError(err).Error("failed to load pcan library")
		return nil, err
	}
	bus, err := newBus(driver, channel, config, s)
	if err != nil {
		return nil, err
	}
	return bus, nil
}

// New creates a bus on top of an already loaded driver
func New(driver Driver, channel string, config can.Config) (*Bus, error) {
	if config.Logger == nil {
		config.Logger = log.NewEntry(log.StandardLogger())
	}
	s, err := parseSettings(channel, config)
	if err != nil {
		return nil, err
	}
	return newBus(driver, channel, config, s)
}

func newBus(driver Driver, channel string, config can.Config, s settings) (*Bus, error) {
	logger := config.Logger.WithField("channel", channel)
	hw := NewHardware(driver, logger)
	hw.SetLanguage(s.language)

	status, err := hw.Initialize(s.handle, s.btr, s.init)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		initErr := &can.InitializationError{Code: uint32(status), Text: hw.ErrorText(status)}
		logger.WithError(initErr).Error("failed to initialize channel")
		return nil, initErr
	}

	// Closures below must not capture the bus itself, see can.Guard
	base := can.NewBase(channel, config.Logger,
		can.WithTeardown(func() error { return release(hw) }),
		can.WithReceiver(receiver(hw, s.pollInterval)),
	)
	bus := &Bus{Base: base, hw: hw, handle: s.handle, bitrate: s.bitrate, btr: s.btr}
	can.Guard(bus, base)
	return bus, nil
}

func release(hw *Hardware) error {
	status, err := hw.Uninitialize()
	if err != nil {
		return err
	}
	if status != StatusOK {
		return &can.StatusError{Op: "uninitialize", Code: uint32(status), Text: hw.ErrorText(status)}
	}
	return nil
}

// receiver polls the driver while its receive queue is empty.
// A zero timeout means a single attempt, a negative one waits forever.
func receiver(hw *Hardware, pollInterval time.Duration) can.RecvFunc {
	return func(timeout time.Duration) (*can.Frame, error) {
		deadline := time.Now().Add(timeout)
		for {
			status, msg, _, err := hw.Read()
			if err != nil {
				return nil, err
			}
			switch {
			case status == StatusOK && msg.MsgType&MessageStatus != 0:
				// Status notification, not a frame
				continue
			case status == StatusOK:
				frame := msg.Frame()
				return &frame, nil
			case status == StatusQRcvEmpty:
				if !wait(timeout, deadline, pollInterval) {
					return nil, can.ErrTimeout
				}
			default:
				return nil, &can.StatusError{Op: "receive", Code: uint32(status), Text: hw.ErrorText(status)}
			}
		}
	}
}

// wait sleeps until the next poll, returns false when the budget is spent
func wait(timeout time.Duration, deadline time.Time, pollInterval time.Duration) bool {
	if timeout == 0 {
		return false
	}
	if timeout > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		pollInterval = min(pollInterval, remaining)
	}
	time.Sleep(pollInterval)
	return true
}

// Send writes frame to the transmit queue. While the queue is full, the
// write is retried until timeout expires.
func (bus *Bus) Send(frame can.Frame, timeout time.Duration) error {
	if err := bus.CheckActive(); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	msg := msgFromFrame(frame)
	deadline := time.Now().Add(timeout)
	for {
		status, err := bus.hw.Write(msg)
		if err != nil {
			return err
		}
		switch status {
		case StatusOK:
			return nil
		case StatusQXmtFull, StatusXmtFull:
			if !wait(max(timeout, 0), deadline, DefaultPollInterval) {
				return &can.StatusError{Op: "send", Code: uint32(status), Text: bus.hw.ErrorText(status)}
			}
		default:
			return &can.StatusError{Op: "send", Code: uint32(status), Text: bus.hw.ErrorText(status)}
		}
	}
}

// Status returns the current status of the channel, [StatusOK] when healthy
func (bus *Bus) Status() (Status, error) {
	return bus.hw.GetStatus()
}

// ErrorText translates status using the configured language
func (bus *Bus) ErrorText(status Status) string {
	return bus.hw.ErrorText(status)
}

func (bus *Bus) Handle() Handle {
	return bus.handle
}

func (bus *Bus) Bitrate() int {
	return bus.bitrate
}

func (bus *Bus) TransportState() TransportState {
	return bus.hw.State()
}
