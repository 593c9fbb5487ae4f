package thermocouple

import (
	"fmt"
	"math"

	"github.com/KevinKickass/ThermoWatch/internal/types"
)

// MAX31855 is a read-only converter: every transfer shifts out one 32 bit
// frame with the temperature and the fault code.
type MAX31855 struct {
	bus *Bus
	cs  Select
}

func NewMAX31855(bus *Bus, cs Select) *MAX31855 {
	return &MAX31855{bus: bus, cs: cs}
}

func (d *MAX31855) Family() types.Family {
	return types.FamilyTypeA
}

// Initialize releases the select line and checks that a plausible frame
// comes back.
func (d *MAX31855) Initialize() error {
	if err := d.bus.Release(d.cs); err != nil {
		return err
	}

	frame, err := d.readFrame()
	if err != nil {
		return err
	}
	if !frame.Plausible() {
		return fmt.Errorf("max31855: frame 0x%08X: %w", frame.Raw, ErrNotResponding)
	}

	return nil
}

func (d *MAX31855) ReadTemperature() (float64, error) {
	frame, err := d.readFrame()
	if err != nil {
		return math.NaN(), err
	}
	if frame.Fault != 0 {
		return math.NaN(), nil
	}
	return frame.Thermocouple, nil
}

// ReadFaultBitmask performs its own transfer, so it reflects the converter
// state at the time of the call rather than the last temperature read.
func (d *MAX31855) ReadFaultBitmask() (uint8, error) {
	frame, err := d.readFrame()
	if err != nil {
		return 0, err
	}
	return frame.Fault, nil
}

func (d *MAX31855) readFrame() (*Frame31855, error) {
	var w, r [max31855FrameSize]byte
	if err := d.bus.Tx(d.cs, w[:], r[:]); err != nil {
		return nil, fmt.Errorf("max31855: %w", err)
	}

	frame, err := DecodeFrame31855(r[:])
	if err != nil {
		return nil, fmt.Errorf("max31855: %w", err)
	}

	return frame, nil
}
