package health

import "github.com/KevinKickass/ThermoWatch/internal/fault"

// Level is the system-wide health verdict for one poll cycle.
type Level int

const (
	OK Level = iota
	Warning
	Critical
)

func (l Level) String() string {
	switch l {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Aggregate reduces channel verdicts to one Level: any critical verdict wins,
// then any fault, otherwise OK. Order of the verdicts never matters.
func Aggregate(verdicts ...fault.Verdict) Level {
	var anyFault, anyCritical bool
	for _, v := range verdicts {
		anyCritical = anyCritical || v.IsCritical
		anyFault = anyFault || v.HasFault
	}

	switch {
	case anyCritical:
		return Critical
	case anyFault:
		return Warning
	default:
		return OK
	}
}
