// Package thermocouple drives MAX31855 and MAX31856 thermocouple converters
// sharing one SPI bus, each behind its own chip select line.
package thermocouple

import (
	"fmt"

	"github.com/KevinKickass/ThermoWatch/internal/types"
)

// Sensor is the uniform per-channel driver capability.
//
// ReadTemperature returns NaN with a nil error when the converter itself
// flags a fault; a non-nil error always means the bus transaction failed.
type Sensor interface {
	Family() types.Family
	Initialize() error
	ReadTemperature() (float64, error)
	ReadFaultBitmask() (uint8, error)
}

// New returns the driver for a channel definition.
func New(def types.ChannelDefinition, bus *Bus, cs Select) (Sensor, error) {
	switch def.Family {
	case types.FamilyTypeA:
		return NewMAX31855(bus, cs), nil
	case types.FamilyTypeB:
		code, err := ThermocoupleTypeCode(def.Thermocouple)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", def.Index, err)
		}
		return NewMAX31856(bus, cs, code), nil
	default:
		return nil, fmt.Errorf("channel %d: unknown sensor family %q", def.Index, def.Family)
	}
}
