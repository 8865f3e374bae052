package pcan

import (
	"testing"

	"github.com/samsamfire/gocanbus/pkg/can"
	"github.com/stretchr/testify/assert"
)

func TestParseChannel(t *testing.T) {
	handle, err := ParseChannel("PCAN_USBBUS1")
	assert.Nil(t, err)
	assert.Equal(t, UsbBus1, handle)
	assert.EqualValues(t, 0x51, handle)

	handle, err = ParseChannel("PCAN_LANBUS8")
	assert.Nil(t, err)
	assert.Equal(t, LanBus8, handle)

	for _, name := range []string{"PCAN_USBBUS9", "PCAN_NONEBUS", "pcan_usbbus1", "can0", ""} {
		_, err = ParseChannel(name)
		assert.ErrorIs(t, err, can.ErrInvalidConfiguration, name)
	}
}

func TestParseBitrate(t *testing.T) {
	btr, err := ParseBitrate(500000)
	assert.Nil(t, err)
	assert.Equal(t, Baud500K, btr)
	btr, err = ParseBitrate(1000000)
	assert.Nil(t, err)
	assert.Equal(t, Baud1M, btr)

	_, err = ParseBitrate(123456)
	assert.ErrorIs(t, err, can.ErrInvalidConfiguration)
	assert.Len(t, Bitrates(), 14)
	assert.IsIncreasing(t, Bitrates())
}

func TestHandleString(t *testing.T) {
	assert.Equal(t, "PCAN_USBBUS1", UsbBus1.String())
	assert.Equal(t, "PCAN_HANDLE(0x99)", Handle(0x99).String())
	for _, name := range Channels() {
		handle, err := ParseChannel(name)
		assert.Nil(t, err)
		assert.Equal(t, name, handle.String())
	}
}

func TestMsgFrameConversion(t *testing.T) {
	frame := can.NewFrame(0x1ABCDE|can.CanEffFlag|can.CanRtrFlag, 0, 0)
	msg := msgFromFrame(frame)
	assert.EqualValues(t, 0x1ABCDE, msg.ID)
	assert.Equal(t, MessageExtended|MessageRTR, msg.MsgType)
	assert.Equal(t, frame, msg.Frame())

	msg = Msg{ID: 0x10, Len: 12}
	assert.EqualValues(t, 8, msg.Frame().DLC)
}
