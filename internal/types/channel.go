package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ChannelLayout describes which converter sits behind which chip select line.
type ChannelLayout struct {
	Layout   LayoutInfo          `yaml:"layout" json:"layout"`
	Channels []ChannelDefinition `yaml:"channels" json:"channels"`
}

type LayoutInfo struct {
	ID          string `yaml:"id" json:"id"`
	Board       string `yaml:"board" json:"board"`
	Description string `yaml:"description" json:"description"`
}

type ChannelDefinition struct {
	Index        int    `yaml:"index" json:"index"`
	Name         string `yaml:"name" json:"name"`
	Family       Family `yaml:"family" json:"family"`
	ChipSelect   string `yaml:"chip_select" json:"chip_select"`
	Thermocouple string `yaml:"thermocouple,omitempty" json:"thermocouple,omitempty"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Label returns "CH<n>" or "CH<n> (<name>)".
func (d ChannelDefinition) Label() string {
	if d.Name == "" {
		return fmt.Sprintf("CH%d", d.Index)
	}
	return fmt.Sprintf("CH%d (%s)", d.Index, d.Name)
}

// Family identifies the converter chip behind a channel.
type Family string

const (
	// FamilyTypeA is the MAX31855 with its 3-flag fault code.
	FamilyTypeA Family = "max31855"
	// FamilyTypeB is the MAX31856 with its 8-flag fault status register.
	FamilyTypeB Family = "max31856"
)

func (f Family) Valid() bool {
	return f == FamilyTypeA || f == FamilyTypeB
}

// Channel Runtime Info
type ChannelInfo struct {
	ID         uuid.UUID
	Index      int
	Name       string
	Family     Family
	ChipSelect string
	Online     bool
}
