package pcan

import (
	"fmt"
	"sort"

	"github.com/samsamfire/gocanbus/pkg/can"
)

// Native types of the PCAN-Basic API
type (
	Handle       uint16 // channel handle (TPCANHandle)
	Status       uint32 // status or error code (TPCANStatus)
	Baudrate     uint16 // BTR0/BTR1 register value (TPCANBaudrate)
	HardwareType uint8  // non plug and play hardware type (TPCANType)
	MessageType  uint8  // message type flags (TPCANMessageType)
	Language     uint16 // language of the error texts
)

// Channel handles
const (
	NoneBus Handle = 0x00

	IsaBus1 Handle = 0x21
	IsaBus2 Handle = 0x22
	IsaBus3 Handle = 0x23
	IsaBus4 Handle = 0x24
	IsaBus5 Handle = 0x25
	IsaBus6 Handle = 0x26
	IsaBus7 Handle = 0x27
	IsaBus8 Handle = 0x28

	DngBus1 Handle = 0x31

	PciBus1 Handle = 0x41
	PciBus2 Handle = 0x42
	PciBus3 Handle = 0x43
	PciBus4 Handle = 0x44
	PciBus5 Handle = 0x45
	PciBus6 Handle = 0x46
	PciBus7 Handle = 0x47
	PciBus8 Handle = 0x48

	UsbBus1 Handle = 0x51
	UsbBus2 Handle = 0x52
	UsbBus3 Handle = 0x53
	UsbBus4 Handle = 0x54
	UsbBus5 Handle = 0x55
	UsbBus6 Handle = 0x56
	UsbBus7 Handle = 0x57
	UsbBus8 Handle = 0x58

	PccBus1 Handle = 0x61
	PccBus2 Handle = 0x62

	LanBus1 Handle = 0x801
	LanBus2 Handle = 0x802
	LanBus3 Handle = 0x803
	LanBus4 Handle = 0x804
	LanBus5 Handle = 0x805
	LanBus6 Handle = 0x806
	LanBus7 Handle = 0x807
	LanBus8 Handle = 0x808
)

// Status codes
const (
	StatusOK           Status = 0x00000
	StatusXmtFull      Status = 0x00001 // Transmit buffer in CAN controller is full
	StatusOverrun      Status = 0x00002 // CAN controller was read too late
	StatusBusLight     Status = 0x00004 // Bus error: an error counter reached the 'light' limit
	StatusBusHeavy     Status = 0x00008 // Bus error: an error counter reached the 'heavy' limit
	StatusBusWarning   Status = StatusBusHeavy
	StatusBusPassive   Status = 0x40000 // Bus error: controller is error passive
	StatusBusOff       Status = 0x00010 // Bus error: controller is bus-off
	StatusAnyBusErr    Status = StatusBusWarning | StatusBusLight | StatusBusHeavy | StatusBusOff | StatusBusPassive
	StatusQRcvEmpty    Status = 0x00020 // Receive queue is empty
	StatusQOverrun     Status = 0x00040 // Receive queue was read too late
	StatusQXmtFull     Status = 0x00080 // Transmit queue is full
	StatusRegTest      Status = 0x00100 // Test of the CAN controller hardware registers failed
	StatusNoDriver     Status = 0x00200 // Driver not loaded
	StatusHwInUse      Status = 0x00400 // Hardware already in use by a Net
	StatusNetInUse     Status = 0x00800 // A Client is already connected to the Net
	StatusIllHw        Status = 0x01400 // Hardware handle is invalid
	StatusIllNet       Status = 0x01800 // Net handle is invalid
	StatusIllClient    Status = 0x01C00 // Client handle is invalid
	StatusIllHandle    Status = StatusIllHw | StatusIllNet | StatusIllClient
	StatusResource     Status = 0x02000 // Resource (FIFO, Client, timeout) cannot be created
	StatusIllParamType Status = 0x04000 // Invalid parameter
	StatusIllParamVal  Status = 0x08000 // Invalid parameter value
	StatusUnknown      Status = 0x10000 // Unknown error
	StatusIllData      Status = 0x20000 // Invalid data, function, or action
	StatusIllMode      Status = 0x80000 // Driver object state is wrong for the attempted operation
	StatusCaution      Status = 0x2000000
	StatusInitialize   Status = 0x4000000 // Channel is not initialized
	StatusIllOperation Status = 0x8000000 // Invalid operation
)

// BTR0/BTR1 register values
const (
	Baud1M   Baudrate = 0x0014
	Baud800K Baudrate = 0x0016
	Baud500K Baudrate = 0x001C
	Baud250K Baudrate = 0x011C
	Baud125K Baudrate = 0x031C
	Baud100K Baudrate = 0x432F
	Baud95K  Baudrate = 0xC34E
	Baud83K  Baudrate = 0x852B
	Baud50K  Baudrate = 0x472F
	Baud47K  Baudrate = 0x1414
	Baud33K  Baudrate = 0x8B2F
	Baud20K  Baudrate = 0x532F
	Baud10K  Baudrate = 0x672F
	Baud5K   Baudrate = 0x7F7F
)

// Non plug and play hardware types, only meaningful for ISA and dongle channels
const (
	TypeNone         HardwareType = 0x00
	TypeISA          HardwareType = 0x01
	TypeDNG          HardwareType = 0x02
	TypeDNGEPP       HardwareType = 0x03
	TypeISAPhytec    HardwareType = 0x04
	TypeDNGSJA       HardwareType = 0x05
	TypeDNGSJAEPP    HardwareType = 0x06
	TypeISASJA       HardwareType = 0x09
	maxHardwareType               = TypeISASJA
)

const (
	MessageStandard MessageType = 0x00
	MessageRTR      MessageType = 0x01
	MessageExtended MessageType = 0x02
	MessageFD       MessageType = 0x04
	MessageBRS      MessageType = 0x08
	MessageESI      MessageType = 0x10
	MessageEcho     MessageType = 0x20
	MessageErrFrame MessageType = 0x40
	MessageStatus   MessageType = 0x80
)

const (
	LanguageNeutral Language = 0x00
	LanguageGerman  Language = 0x07
	LanguageEnglish Language = 0x09
	LanguageSpanish Language = 0x0A
	LanguageFrench  Language = 0x0C
	LanguageItalian Language = 0x10
)

// Classical CAN message, same memory layout as TPCANMsg
type Msg struct {
	ID      uint32
	MsgType MessageType
	Len     uint8
	Data    [8]byte
}

// Reception time, same memory layout as TPCANTimestamp
type Timestamp struct {
	Millis         uint32
	MillisOverflow uint16
	Micros         uint16
}

// Microseconds since the driver was started
func (t Timestamp) Micro() uint64 {
	return uint64(t.Micros) + 1000*uint64(t.Millis) + 0x100000000*1000*uint64(t.MillisOverflow)
}

func msgFromFrame(frame can.Frame) Msg {
	msg := Msg{ID: frame.Ident(), Len: frame.DLC, Data: frame.Data}
	if frame.Extended() {
		msg.MsgType |= MessageExtended
	}
	if frame.Remote() {
		msg.MsgType |= MessageRTR
	}
	return msg
}

func (m Msg) Frame() can.Frame {
	frame := can.NewFrame(m.ID, 0, min(m.Len, 8))
	frame.Data = m.Data
	if m.MsgType&MessageExtended != 0 {
		frame.ID |= can.CanEffFlag
	}
	if m.MsgType&MessageRTR != 0 {
		frame.ID |= can.CanRtrFlag
	}
	return frame
}

var channels = map[string]Handle{
	"PCAN_NONEBUS": NoneBus,

	"PCAN_ISABUS1": IsaBus1, "PCAN_ISABUS2": IsaBus2, "PCAN_ISABUS3": IsaBus3, "PCAN_ISABUS4": IsaBus4,
	"PCAN_ISABUS5": IsaBus5, "PCAN_ISABUS6": IsaBus6, "PCAN_ISABUS7": IsaBus7, "PCAN_ISABUS8": IsaBus8,

	"PCAN_DNGBUS1": DngBus1,

	"PCAN_PCIBUS1": PciBus1, "PCAN_PCIBUS2": PciBus2, "PCAN_PCIBUS3": PciBus3, "PCAN_PCIBUS4": PciBus4,
	"PCAN_PCIBUS5": PciBus5, "PCAN_PCIBUS6": PciBus6, "PCAN_PCIBUS7": PciBus7, "PCAN_PCIBUS8": PciBus8,

	"PCAN_USBBUS1": UsbBus1, "PCAN_USBBUS2": UsbBus2, "PCAN_USBBUS3": UsbBus3, "PCAN_USBBUS4": UsbBus4,
	"PCAN_USBBUS5": UsbBus5, "PCAN_USBBUS6": UsbBus6, "PCAN_USBBUS7": UsbBus7, "PCAN_USBBUS8": UsbBus8,

	"PCAN_PCCBUS1": PccBus1, "PCAN_PCCBUS2": PccBus2,

	"PCAN_LANBUS1": LanBus1, "PCAN_LANBUS2": LanBus2, "PCAN_LANBUS3": LanBus3, "PCAN_LANBUS4": LanBus4,
	"PCAN_LANBUS5": LanBus5, "PCAN_LANBUS6": LanBus6, "PCAN_LANBUS7": LanBus7, "PCAN_LANBUS8": LanBus8,
}

var bitrates = map[int]Baudrate{
	1000000: Baud1M,
	800000:  Baud800K,
	500000:  Baud500K,
	250000:  Baud250K,
	125000:  Baud125K,
	100000:  Baud100K,
	95000:   Baud95K,
	83000:   Baud83K,
	50000:   Baud50K,
	47000:   Baud47K,
	33000:   Baud33K,
	20000:   Baud20K,
	10000:   Baud10K,
	5000:    Baud5K,
}

func (h Handle) String() string {
	for name, handle := range channels {
		if handle == h {
			return name
		}
	}
	return fmt.Sprintf("PCAN_HANDLE(0x%X)", uint16(h))
}

// ParseChannel maps a channel name such as "PCAN_USBBUS1" to its handle.
// The undefined channel PCAN_NONEBUS is refused.
func ParseChannel(name string) (Handle, error) {
	handle, ok := channels[name]
	if !ok || handle == NoneBus {
		return NoneBus, fmt.Errorf("%w : unknown pcan channel %q", can.ErrInvalidConfiguration, name)
	}
	return handle, nil
}

// ParseBitrate maps a bitrate in bit/s to its register value
func ParseBitrate(bitrate int) (Baudrate, error) {
	btr, ok := bitrates[bitrate]
	if !ok {
		return 0, fmt.Errorf("%w : unsupported pcan bitrate %v, expecting one of %v",
			can.ErrInvalidConfiguration, bitrate, Bitrates())
	}
	return btr, nil
}

// Supported bitrates in bit/s, in increasing order
func Bitrates() []int {
	rates := make([]int, 0, len(bitrates))
	for rate := range bitrates {
		rates = append(rates, rate)
	}
	sort.Ints(rates)
	return rates
}

// Channels returns the names of all the known channels
func Channels() []string {
	names := make([]string, 0, len(channels))
	for name, handle := range channels {
		if handle != NoneBus {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
