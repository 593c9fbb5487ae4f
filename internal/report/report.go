// Package report writes the human-readable per-cycle channel report.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/KevinKickass/ThermoWatch/internal/health"
)

// ChannelResult is what one channel produced in one cycle.
type ChannelResult struct {
	Index       int
	Name        string
	Temperature float64
	Faults      []string
	Mask        uint8
	HasFault    bool
	Critical    bool
	Err         error
}

// Text writes one line per channel and one summary line per cycle.
type Text struct {
	mu sync.Mutex
	w  io.Writer
}

func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) Channel(r ChannelResult) error {
	label := fmt.Sprintf("CH%d", r.Index)
	if r.Name != "" {
		label = fmt.Sprintf("CH%d %s", r.Index, r.Name)
	}

	var line string
	switch {
	case r.Err != nil:
		line = fmt.Sprintf("%s: BUS ERROR: %v", label, r.Err)
	case r.HasFault && len(r.Faults) == 0:
		// MAX31855 lieferte NaN, Fehlerregister aber leer
		line = fmt.Sprintf("%s: FAULT 0x%02X (no temperature)", label, r.Mask)
	case r.HasFault:
		line = fmt.Sprintf("%s: FAULT 0x%02X %s", label, r.Mask, strings.Join(r.Faults, ","))
	default:
		line = fmt.Sprintf("%s: %.2f C", label, r.Temperature)
	}
	if r.Critical {
		line += " [critical]"
	}

	return t.writeLine(line)
}

func (t *Text) Cycle(cycle uint64, level health.Level) error {
	return t.writeLine(fmt.Sprintf("cycle %d: %s", cycle, level))
}

func (t *Text) writeLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.w, line+"\n"); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
