package pcan

import (
	"errors"
	"sync"
)

type nativeCall struct {
	op     string
	handle Handle
}

// fakeDriver simulates the PCAN-Basic library
type fakeDriver struct {
	mu          sync.Mutex
	calls       []nativeCall
	initStatus  Status
	initErr     error
	lastInit    InitParams
	lastBtr     Baudrate
	status      Status
	rx          []Msg
	rxStatus    []Status
	tx          []Msg
	txStatus    []Status
	uninitErr   error
	textFails   bool
	textPanics  bool
	readFaulted bool
}

var errBoom = errors.New("boom")

func newFakeDriver() *fakeDriver {
	return &fakeDriver{}
}

func (d *fakeDriver) record(op string, handle Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, nativeCall{op: op, handle: handle})
}

func (d *fakeDriver) count(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (d *fakeDriver) nativeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.op != "GetErrorText" {
			n++
		}
	}
	return n
}

func (d *fakeDriver) Initialize(channel Handle, bitrate Baudrate, params InitParams) (Status, error) {
	d.record("Initialize", channel)
	d.lastInit = params
	d.lastBtr = bitrate
	return d.initStatus, d.initErr
}

func (d *fakeDriver) Uninitialize(channel Handle) (Status, error) {
	d.record("Uninitialize", channel)
	return StatusOK, d.uninitErr
}

func (d *fakeDriver) Read(channel Handle) (Status, Msg, Timestamp, error) {
	d.record("Read", channel)
	if d.readFaulted {
		return StatusUnknown, Msg{}, Timestamp{}, errBoom
	}
	if len(d.rxStatus) > 0 {
		status := d.rxStatus[0]
		d.rxStatus = d.rxStatus[1:]
		if status != StatusOK {
			return status, Msg{}, Timestamp{}, nil
		}
	}
	if len(d.rx) == 0 {
		return StatusQRcvEmpty, Msg{}, Timestamp{}, nil
	}
	msg := d.rx[0]
	d.rx = d.rx[1:]
	return StatusOK, msg, Timestamp{Millis: 10}, nil
}

func (d *fakeDriver) Write(channel Handle, msg Msg) (Status, error) {
	d.record("Write", channel)
	if len(d.txStatus) > 0 {
		status := d.txStatus[0]
		d.txStatus = d.txStatus[1:]
		if status != StatusOK {
			return status, nil
		}
	}
	d.tx = append(d.tx, msg)
	return StatusOK, nil
}

func (d *fakeDriver) GetStatus(channel Handle) (Status, error) {
	d.record("GetStatus", channel)
	return d.status, nil
}

func (d *fakeDriver) GetErrorText(code Status, language Language) (Status, string, error) {
	d.record("GetErrorText", NoneBus)
	if d.textPanics {
		panic("dll is gone")
	}
	if d.textFails {
		return StatusIllParamVal, "", nil
	}
	if language == LanguageGerman {
		return StatusOK, "Ein Fehler", nil
	}
	return StatusOK, "Some error", nil
}
