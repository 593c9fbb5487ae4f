package monitor

import (
	"fmt"
	"math"

	"github.com/KevinKickass/ThermoWatch/internal/fault"
	"github.com/KevinKickass/ThermoWatch/internal/report"
	"github.com/KevinKickass/ThermoWatch/internal/thermocouple"
	"github.com/KevinKickass/ThermoWatch/internal/types"
	"github.com/google/uuid"
)

// Channel binds a driver to the fault policy of its family.
type Channel struct {
	ID         uuid.UUID
	Def        types.ChannelDefinition
	sensor     thermocouple.Sensor
	classifier fault.Classifier
}

func NewChannel(def types.ChannelDefinition, sensor thermocouple.Sensor) (*Channel, error) {
	classifier, err := fault.ForFamily(def.Family)
	if err != nil {
		return nil, fmt.Errorf("channel %d: %w", def.Index, err)
	}
	if sensor.Family() != def.Family {
		return nil, fmt.Errorf("channel %d: driver family %s does not match %s",
			def.Index, sensor.Family(), def.Family)
	}

	return &Channel{
		ID:         uuid.New(),
		Def:        def,
		sensor:     sensor,
		classifier: classifier,
	}, nil
}

func (c *Channel) Initialize() error {
	return c.sensor.Initialize()
}

func (c *Channel) Info(online bool) types.ChannelInfo {
	return types.ChannelInfo{
		ID:         c.ID,
		Index:      c.Def.Index,
		Name:       c.Def.Name,
		Family:     c.Def.Family,
		ChipSelect: c.Def.ChipSelect,
		Online:     online,
	}
}

// Sample is one channel's reading and verdict for one cycle. Temperature is
// only meaningful when Valid is set.
type Sample struct {
	Temperature float64
	Valid       bool
	Faults      fault.Set
	Verdict     fault.Verdict
	Err         error
}

// Sample reads the channel once. MAX31855 channels read the temperature and
// only consult the fault code on NaN; MAX31856 channels read the fault
// status first and only read the temperature when it is clear.
func (c *Channel) Sample() Sample {
	var (
		obs  fault.Observation
		temp float64
	)

	switch c.Def.Family {
	case types.FamilyTypeA:
		temp, obs = c.sampleTemperatureFirst()
	default:
		temp, obs = c.sampleFaultFirst()
	}

	set, verdict := c.classifier.Classify(obs)
	return Sample{
		Temperature: temp,
		Valid:       !verdict.HasFault && !math.IsNaN(temp),
		Faults:      set,
		Verdict:     verdict,
		Err:         obs.Err,
	}
}

func (c *Channel) sampleTemperatureFirst() (float64, fault.Observation) {
	temp, err := c.sensor.ReadTemperature()
	if err != nil {
		return math.NaN(), fault.Observation{Err: err}
	}
	if !math.IsNaN(temp) {
		return temp, fault.Observation{}
	}

	mask, err := c.sensor.ReadFaultBitmask()
	return math.NaN(), fault.Observation{Mask: mask, TemperatureNaN: true, Err: err}
}

func (c *Channel) sampleFaultFirst() (float64, fault.Observation) {
	mask, err := c.sensor.ReadFaultBitmask()
	if err != nil {
		return math.NaN(), fault.Observation{Err: err}
	}
	if mask != 0 {
		return math.NaN(), fault.Observation{Mask: mask}
	}

	temp, err := c.sensor.ReadTemperature()
	if err != nil {
		return math.NaN(), fault.Observation{Err: err}
	}
	return temp, fault.Observation{TemperatureNaN: math.IsNaN(temp)}
}

func (c *Channel) result(s Sample) report.ChannelResult {
	return report.ChannelResult{
		Index:       c.Def.Index,
		Name:        c.Def.Name,
		Temperature: s.Temperature,
		Faults:      s.Faults.Names(),
		Mask:        s.Faults.Mask,
		HasFault:    s.Verdict.HasFault,
		Critical:    s.Verdict.IsCritical,
		Err:         s.Err,
	}
}

// pollsBefore orders MAX31855 channels before MAX31856, each ascending.
func (c *Channel) pollsBefore(other *Channel) bool {
	if c.Def.Family != other.Def.Family {
		return c.Def.Family == types.FamilyTypeA
	}
	return c.Def.Index < other.Def.Index
}
