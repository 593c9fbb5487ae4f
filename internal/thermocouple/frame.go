package thermocouple

import (
	"encoding/binary"
	"fmt"
)

// MAX31855 frame layout (32 bit, MSB first)
const (
	max31855FaultMask     = 0x00000007 // D2..D0 SCV, SCG, OC
	max31855FaultSummary  = 0x00010000 // D16
	max31855ReservedMask  = 0x00020008 // D17, D3 always read 0
	max31855FrameSize     = 4
	max31855TCResolution  = 0.25
	max31855CJResolution  = 0.0625
	max31855NotResponding = 0xFFFFFFFF
)

// Frame31855 is one decoded MAX31855 read.
type Frame31855 struct {
	Raw          uint32
	Thermocouple float64 // °C
	ColdJunction float64 // °C
	Fault        uint8
}

// DecodeFrame31855 parses the 4 bytes shifted out by a MAX31855.
func DecodeFrame31855(data []byte) (*Frame31855, error) {
	if len(data) < max31855FrameSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	raw := binary.BigEndian.Uint32(data[:max31855FrameSize])

	// Arithmetische Shifts für Vorzeichenerweiterung
	tc := int32(raw) >> 18
	cj := int32(raw<<16) >> 20

	return &Frame31855{
		Raw:          raw,
		Thermocouple: float64(tc) * max31855TCResolution,
		ColdJunction: float64(cj) * max31855CJResolution,
		Fault:        uint8(raw & max31855FaultMask),
	}, nil
}

// Plausible reports whether the frame can have come from a live converter.
func (f *Frame31855) Plausible() bool {
	if f.Raw == max31855NotResponding {
		return false
	}
	if f.Raw&max31855ReservedMask != 0 {
		return false
	}
	// Summary bit and fault code must agree.
	return (f.Raw&max31855FaultSummary != 0) == (f.Fault != 0)
}

// MAX31856 register map
const (
	regCR0   uint8 = 0x00
	regCR1   uint8 = 0x01
	regMASK  uint8 = 0x02
	regLTCBH uint8 = 0x0C
	regLTCBM uint8 = 0x0D
	regLTCBL uint8 = 0x0E
	regSR    uint8 = 0x0F

	registerCount = 16
	writeFlag     = 0x80
)

// CR0 bits
const (
	cr0AutoConvert uint8 = 0x80
	cr0OCFault0    uint8 = 0x10
)

// CR1 thermocouple type codes (low nibble)
var thermocoupleTypes = map[string]uint8{
	"B": 0x00,
	"E": 0x01,
	"J": 0x02,
	"K": 0x03,
	"N": 0x04,
	"R": 0x05,
	"S": 0x06,
	"T": 0x07,
}

const max31856TCResolution = 0.0078125

// ThermocoupleTypeCode returns the CR1 code for a thermocouple letter. An
// empty name selects K.
func ThermocoupleTypeCode(name string) (uint8, error) {
	if name == "" {
		name = "K"
	}
	code, ok := thermocoupleTypes[name]
	if !ok {
		return 0, fmt.Errorf("unsupported thermocouple type: %s", name)
	}
	return code, nil
}

// ReadRegistersRequest builds the transmit buffer for reading n registers
// starting at reg. The first byte of the response is the address echo.
func ReadRegistersRequest(reg uint8, n int) []byte {
	w := make([]byte, n+1)
	w[0] = reg &^ writeFlag
	return w
}

// WriteRegisterRequest builds the transmit buffer for writing one register.
func WriteRegisterRequest(reg uint8, value uint8) []byte {
	return []byte{reg | writeFlag, value}
}

// DecodeLinearizedTemperature parses LTCBH..LTCBL (19 bit two's complement).
func DecodeLinearizedTemperature(data []byte) (float64, error) {
	if len(data) < 3 {
		return 0, fmt.Errorf("temperature response too short: %d bytes", len(data))
	}
	v := int32(uint32(data[0])<<24|uint32(data[1])<<16|uint32(data[2])<<8) >> 13
	return float64(v) * max31856TCResolution, nil
}
