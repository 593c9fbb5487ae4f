// Package fault decodes converter fault bitmasks and decides whether a
// channel fault looks like a disconnected thermocouple or like a wiring or
// bus malfunction.
package fault

import (
	"fmt"
	"math/bits"

	"github.com/KevinKickass/ThermoWatch/internal/types"
)

// Flag is one named bit of a fault bitmask.
type Flag struct {
	Bit  uint8
	Name string
}

// MAX31855 fault code (D2..D0)
var typeAFlags = []Flag{
	{Bit: 0x01, Name: "OPEN_CIRCUIT"},
	{Bit: 0x02, Name: "SHORT_GND"},
	{Bit: 0x04, Name: "SHORT_VCC"},
}

// MAX31856 fault status register (SR, 0x0F)
var typeBFlags = []Flag{
	{Bit: 0x01, Name: "OPEN_CIRCUIT"},
	{Bit: 0x02, Name: "OVER_UNDER_VOLTAGE"},
	{Bit: 0x04, Name: "TC_LOW"},
	{Bit: 0x08, Name: "TC_HIGH"},
	{Bit: 0x10, Name: "CJ_LOW"},
	{Bit: 0x20, Name: "CJ_HIGH"},
	{Bit: 0x40, Name: "TC_RANGE"},
	{Bit: 0x80, Name: "CJ_RANGE"},
}

// Set is the decoded form of a raw bitmask. Bits outside the family's
// defined flags are kept in Mask but never counted.
type Set struct {
	Mask  uint8
	Flags []Flag
}

// Count returns the number of defined flags that are set.
func (s Set) Count() int {
	return len(s.Flags)
}

func (s Set) Empty() bool {
	return len(s.Flags) == 0
}

// Names returns the flag names in bit order.
func (s Set) Names() []string {
	names := make([]string, len(s.Flags))
	for i, f := range s.Flags {
		names[i] = f.Name
	}
	return names
}

func (s Set) Has(name string) bool {
	for _, f := range s.Flags {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Verdict is the per-channel, per-cycle result of classification.
type Verdict struct {
	HasFault   bool
	IsCritical bool
}

// Observation is what the poll loop learned about a channel in one cycle.
type Observation struct {
	// Mask is the raw fault bitmask. Only meaningful when MaskErr is nil.
	Mask uint8
	// TemperatureNaN is set when the temperature read signalled a fault.
	TemperatureNaN bool
	// Err is set when a bus transaction for the channel failed.
	Err error
}

// Classifier is the per-family decoding and criticality policy.
type Classifier interface {
	Family() types.Family
	Decode(mask uint8) Set
	Classify(obs Observation) (Set, Verdict)
}

// ForFamily returns the classifier for a converter family.
func ForFamily(family types.Family) (Classifier, error) {
	switch family {
	case types.FamilyTypeA:
		return TypeA{}, nil
	case types.FamilyTypeB:
		return TypeB{}, nil
	default:
		return nil, fmt.Errorf("unknown sensor family: %q", family)
	}
}

func decode(mask uint8, flags []Flag) Set {
	set := Set{Mask: mask}
	for _, f := range flags {
		if mask&f.Bit != 0 {
			set.Flags = append(set.Flags, f)
		}
	}
	return set
}

// TypeA classifies MAX31855 fault codes. A disconnected thermocouple shows
// exactly one flag (open circuit); two or more at once are implausible.
type TypeA struct{}

func (TypeA) Family() types.Family { return types.FamilyTypeA }

func (TypeA) Decode(mask uint8) Set {
	return decode(mask, typeAFlags)
}

func (c TypeA) Classify(obs Observation) (Set, Verdict) {
	if obs.Err != nil {
		return Set{}, Verdict{HasFault: true, IsCritical: true}
	}

	set := c.Decode(obs.Mask)
	// NaN counts as a fault even when the fault register reads back clean.
	return set, Verdict{
		HasFault:   obs.Mask != 0 || obs.TemperatureNaN,
		IsCritical: set.Count() > 1,
	}
}

// TypeB classifies MAX31856 fault status. A disconnected thermocouple sets
// OPEN_CIRCUIT and TC_RANGE; more than two flags, or all of them, point at
// the bus or the wiring.
type TypeB struct{}

const typeBAllFlags = 0xFF

func (TypeB) Family() types.Family { return types.FamilyTypeB }

func (TypeB) Decode(mask uint8) Set {
	return decode(mask, typeBFlags)
}

func (c TypeB) Classify(obs Observation) (Set, Verdict) {
	if obs.Err != nil {
		return Set{}, Verdict{HasFault: true, IsCritical: true}
	}

	set := c.Decode(obs.Mask)
	return set, Verdict{
		HasFault:   obs.Mask != 0,
		IsCritical: bits.OnesCount8(obs.Mask) > 2 || obs.Mask == typeBAllFlags,
	}
}
