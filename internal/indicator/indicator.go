// Package indicator renders the system health on a single RGB pixel.
package indicator

import (
	"fmt"

	"github.com/KevinKickass/ThermoWatch/internal/health"
	"go.uber.org/zap"
)

// Color is a packed 0xRRGGBB value.
type Color uint32

const (
	ColorOff      Color = 0x000000
	ColorInit     Color = 0x0000FF
	ColorOK       Color = 0x00FF00
	ColorWarning  Color = 0xFFFF00
	ColorCritical Color = 0xFF0000
)

func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

func (c Color) String() string {
	return fmt.Sprintf("#%06X", uint32(c))
}

// ForHealth maps a health level to its indicator colour.
func ForHealth(level health.Level) Color {
	switch level {
	case health.OK:
		return ColorOK
	case health.Warning:
		return ColorWarning
	default:
		return ColorCritical
	}
}

// Indicator is a single-pixel status light.
type Indicator interface {
	SetColor(c Color) error
}

// Log is an Indicator without hardware that logs every colour change.
type Log struct {
	logger  *zap.Logger
	current Color
	set     bool
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SetColor(c Color) error {
	if l.set && c == l.current {
		return nil
	}
	l.current = c
	l.set = true

	l.logger.Info("Indicator color changed", zap.Stringer("color", c))
	return nil
}

// Current returns the last colour set and whether any was set yet.
func (l *Log) Current() (Color, bool) {
	return l.current, l.set
}
