package pcan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samsamfire/gocanbus/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Returned by [Hardware.Initialize] once the transport left the Unopened state
var ErrAlreadyInitialized = errors.New("pcan transport was already initialized")

// State of the channel opened by a [Hardware]
type TransportState uint8

const (
	Unopened TransportState = iota
	Initialized
	Closed
)

func (s TransportState) String() string {
	switch s {
	case Unopened:
		return "UNOPENED"
	case Initialized:
		return "INITIALIZED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Hardware drives one channel of the PCAN-Basic driver through
// Initialize, then any number of Read / Write / GetStatus, then Uninitialize.
// Operations return the native status, they never retry.
// A non nil error is either [ErrAlreadyInitialized], [can.ErrNotInitialized]
// or a [*can.DriverFault].
type Hardware struct {
	mu       sync.Mutex
	driver   Driver
	logger   *log.Entry
	state    TransportState
	channel  Handle
	language Language
}

func NewHardware(driver Driver, logger *log.Entry) *Hardware {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Hardware{driver: driver, logger: logger, language: LanguageEnglish}
}

func (h *Hardware) State() TransportState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Language used by [Hardware.ErrorText], english by default
func (h *Hardware) SetLanguage(language Language) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.language = language
}

func (h *Hardware) fault(op string, err error) error {
	var fault *can.DriverFault
	if !errors.As(err, &fault) {
		err = &can.DriverFault{Op: op, Err: err}
	}
	h.logger.WithError(err).Error("native call failed")
	return err
}

// Initialize opens channel at the given bitrate. The transport only
// becomes Initialized when the driver returns [StatusOK].
func (h *Hardware) Initialize(channel Handle, bitrate Baudrate, params InitParams) (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Unopened {
		return StatusIllOperation, fmt.Errorf("%w : pcan transport is %v", ErrAlreadyInitialized, h.state)
	}
	status, err := h.driver.Initialize(channel, bitrate, params)
	if err != nil {
		return status, h.fault("CAN_Initialize", err)
	}
	if status != StatusOK {
		h.logger.Debugf("initialize of %v returned status 0x%X", channel, uint32(status))
		return status, nil
	}
	h.channel = channel
	h.state = Initialized
	h.logger.Debugf("initialized %v", channel)
	return status, nil
}

func (h *Hardware) checkInitialized() error {
	if h.state != Initialized {
		return fmt.Errorf("%w : pcan transport is %v", can.ErrNotInitialized, h.state)
	}
	return nil
}

// Read pops one message from the receive queue. The message is only
// meaningful when the status is [StatusOK].
func (h *Hardware) Read() (Status, Msg, Timestamp, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized(); err != nil {
		return StatusInitialize, Msg{}, Timestamp{}, err
	}
	status, msg, timestamp, err := h.driver.Read(h.channel)
	if err != nil {
		return status, Msg{}, Timestamp{}, h.fault("CAN_Read", err)
	}
	return status, msg, timestamp, nil
}

func (h *Hardware) Write(msg Msg) (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized(); err != nil {
		return StatusInitialize, err
	}
	status, err := h.driver.Write(h.channel, msg)
	if err != nil {
		return status, h.fault("CAN_Write", err)
	}
	return status, nil
}

// GetStatus returns the current status of the channel
func (h *Hardware) GetStatus() (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkInitialized(); err != nil {
		return StatusInitialize, err
	}
	status, err := h.driver.GetStatus(h.channel)
	if err != nil {
		return status, h.fault("CAN_GetStatus", err)
	}
	return status, nil
}

// Uninitialize releases the channel. It is a no op outside of the
// Initialized state, so it can safely be called several times.
// The transport is Closed afterwards, even if the driver reported a failure.
func (h *Hardware) Uninitialize() (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Initialized {
		h.state = Closed
		return StatusOK, nil
	}
	h.state = Closed
	status, err := h.driver.Uninitialize(h.channel)
	if err != nil {
		return status, h.fault("CAN_Uninitialize", err)
	}
	h.logger.Debugf("uninitialized %v", h.channel)
	return status, nil
}

// ErrorText returns the text of status in the configured language
func (h *Hardware) ErrorText(status Status) string {
	h.mu.Lock()
	language := h.language
	h.mu.Unlock()
	return h.ErrorTextIn(status, language)
}

// ErrorTextIn translates status. It always returns a non empty text,
// falling back to a generic message containing the code.
// Must not be called while holding the transport lock.
func (h *Hardware) ErrorTextIn(status Status, language Language) (text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fallback := fmt.Sprintf("An error occurred. Error-code's text (%Xh) couldn't be retrieved", uint32(status))
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorf("text lookup of status 0x%X panicked : %v", uint32(status), r)
			text = fallback
		}
	}()
	ret, text, err := h.driver.GetErrorText(status, language)
	if err != nil {
		h.logger.WithError(err).Warnf("failed to get text of status 0x%X", uint32(status))
	}
	if err != nil || ret != StatusOK || text == "" {
		return fallback
	}
	return text
}
