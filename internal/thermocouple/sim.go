package thermocouple

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Simulator is an in-memory SPI bus with register models of both converter
// families attached to named select lines. It satisfies Conn, and Line
// returns matching Select values, so the real drivers run unchanged on it.
type Simulator struct {
	mu       sync.Mutex
	chips    map[string]simChip
	txErrs   map[string]error
	selected string
}

type simChip interface {
	transfer(w, r []byte)
}

func NewSimulator() *Simulator {
	return &Simulator{
		chips:  make(map[string]simChip),
		txErrs: make(map[string]error),
	}
}

// Line returns the select line with the given name. Lines without an
// attached chip read back as a floating bus (all ones).
func (s *Simulator) Line(name string) Select {
	return &simLine{sim: s, name: name}
}

// AddMAX31855 attaches a simulated MAX31855 to a select line.
func (s *Simulator) AddMAX31855(line string) *SimMAX31855 {
	chip := &SimMAX31855{Temperature: 21.5, Internal: 24.0}
	s.mu.Lock()
	s.chips[line] = chip
	s.mu.Unlock()
	return chip
}

// AddMAX31856 attaches a simulated MAX31856 to a select line.
func (s *Simulator) AddMAX31856(line string) *SimMAX31856 {
	chip := &SimMAX31856{Temperature: 21.5}
	s.mu.Lock()
	s.chips[line] = chip
	s.mu.Unlock()
	return chip
}

// FailTransfers makes every transfer on line fail with err. A nil err clears
// the failure.
func (s *Simulator) FailTransfers(line string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.txErrs, line)
		return
	}
	s.txErrs[line] = err
}

func (s *Simulator) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == "" {
		return errors.New("sim: no chip selected")
	}
	if err := s.txErrs[s.selected]; err != nil {
		return err
	}

	chip, ok := s.chips[s.selected]
	if !ok {
		for i := range r {
			r[i] = 0xFF
		}
		return nil
	}

	chip.transfer(w, r)
	return nil
}

func (s *Simulator) setLevel(name string, l gpio.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l == gpio.Low {
		if s.selected != "" && s.selected != name {
			return fmt.Errorf("sim: %s asserted while %s is selected", name, s.selected)
		}
		s.selected = name
		return nil
	}

	if s.selected == name {
		s.selected = ""
	}
	return nil
}

type simLine struct {
	sim  *Simulator
	name string
}

func (l *simLine) Out(level gpio.Level) error {
	return l.sim.setLevel(l.name, level)
}

func (l *simLine) String() string {
	return l.name
}

// SimMAX31855 models the 32 bit output frame of a MAX31855.
type SimMAX31855 struct {
	mu          sync.Mutex
	Temperature float64
	Internal    float64
	Fault       uint8
	Dead        bool
}

func (c *SimMAX31855) Set(temperature float64, fault uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Temperature = temperature
	c.Fault = fault & max31855FaultMask
}

func (c *SimMAX31855) transfer(_, r []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Dead {
		for i := range r {
			r[i] = 0xFF
		}
		return
	}

	tc := uint32(int32(math.Round(c.Temperature/max31855TCResolution))) & 0x3FFF
	cj := uint32(int32(math.Round(c.Internal/max31855CJResolution))) & 0x0FFF

	raw := tc<<18 | cj<<4 | uint32(c.Fault)
	if c.Fault != 0 {
		raw |= max31855FaultSummary
	}

	var frame [max31855FrameSize]byte
	binary.BigEndian.PutUint32(frame[:], raw)
	copy(r, frame[:])
}

// SimMAX31856 models the MAX31856 register file.
type SimMAX31856 struct {
	mu          sync.Mutex
	regs        [registerCount]byte
	Temperature float64
	Fault       uint8
	Dead        bool
}

func (c *SimMAX31856) Set(temperature float64, fault uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Temperature = temperature
	c.Fault = fault
}

// Register returns the current content of a register.
func (c *SimMAX31856) Register(reg uint8) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[reg&0x0F]
}

func (c *SimMAX31856) transfer(w, r []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Dead || len(w) == 0 {
		for i := range r {
			r[i] = 0xFF
		}
		return
	}

	addr := w[0]
	base := addr &^ writeFlag

	if addr&writeFlag != 0 {
		for i, b := range w[1:] {
			c.regs[(int(base)+i)%registerCount] = b
		}
		return
	}

	c.refresh()
	r[0] = 0x00
	for i := 1; i < len(r); i++ {
		r[i] = c.regs[(int(base)+i-1)%registerCount]
	}
}

// refresh updates the conversion and status registers from the model state.
func (c *SimMAX31856) refresh() {
	v := uint32(int32(math.Round(c.Temperature/max31856TCResolution))) << 5
	c.regs[regLTCBH] = byte(v >> 16)
	c.regs[regLTCBM] = byte(v >> 8)
	c.regs[regLTCBL] = byte(v)
	c.regs[regSR] = c.Fault
}
