package thermocouple

import (
	"fmt"

	"github.com/KevinKickass/ThermoWatch/internal/types"
)

// MAX31856 is a register-mapped converter with an 8 bit fault status
// register.
type MAX31856 struct {
	bus      *Bus
	cs       Select
	typeCode uint8
}

func NewMAX31856(bus *Bus, cs Select, typeCode uint8) *MAX31856 {
	return &MAX31856{bus: bus, cs: cs, typeCode: typeCode}
}

func (d *MAX31856) Family() types.Family {
	return types.FamilyTypeB
}

// Initialize unmasks every fault, enables open-circuit detection, selects the
// thermocouple type and starts continuous conversion. The type register is
// read back to make sure the converter is actually listening.
func (d *MAX31856) Initialize() error {
	if err := d.bus.Release(d.cs); err != nil {
		return err
	}

	steps := []struct {
		reg   uint8
		value uint8
	}{
		{regMASK, 0x00},
		{regCR0, cr0OCFault0},
		{regCR1, d.typeCode},
		{regCR0, cr0OCFault0 | cr0AutoConvert},
	}
	for _, s := range steps {
		if err := d.writeRegister(s.reg, s.value); err != nil {
			return err
		}
	}

	cr1, err := d.readRegisters(regCR1, 1)
	if err != nil {
		return err
	}
	if cr1[0]&0x0F != d.typeCode {
		return fmt.Errorf("max31856: CR1 read back 0x%02X, wrote 0x%02X: %w", cr1[0], d.typeCode, ErrNotResponding)
	}

	return nil
}

func (d *MAX31856) ReadTemperature() (float64, error) {
	data, err := d.readRegisters(regLTCBH, 3)
	if err != nil {
		return 0, err
	}
	return DecodeLinearizedTemperature(data)
}

func (d *MAX31856) ReadFaultBitmask() (uint8, error) {
	data, err := d.readRegisters(regSR, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (d *MAX31856) readRegisters(reg uint8, n int) ([]byte, error) {
	w := ReadRegistersRequest(reg, n)
	r := make([]byte, len(w))
	if err := d.bus.Tx(d.cs, w, r); err != nil {
		return nil, fmt.Errorf("max31856: read register 0x%02X: %w", reg, err)
	}
	return r[1:], nil
}

func (d *MAX31856) writeRegister(reg, value uint8) error {
	w := WriteRegisterRequest(reg, value)
	r := make([]byte, len(w))
	if err := d.bus.Tx(d.cs, w, r); err != nil {
		return fmt.Errorf("max31856: write register 0x%02X: %w", reg, err)
	}
	return nil
}
