package monitor

import (
	"fmt"
	"time"

	"github.com/KevinKickass/ThermoWatch/internal/health"
)

type State int

const (
	StateInitializing State = iota
	StateRunning
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

type Status struct {
	State           State
	Health          health.Level
	Cycles          uint64
	ActiveChannels  int
	LastStateChange time.Time
	Error           string
}

// Runtime faults never leave RUNNING; HALTED is terminal.
var validTransitions = map[State][]State{
	StateInitializing: {StateRunning, StateHalted},
	StateRunning:      {},
	StateHalted:       {},
}

func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
