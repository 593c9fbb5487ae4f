// Package monitor runs the poll loop: bring up every channel, then read,
// classify and aggregate all channels once per tick and show the result on
// the status indicator.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/ThermoWatch/internal/fault"
	"github.com/KevinKickass/ThermoWatch/internal/health"
	"github.com/KevinKickass/ThermoWatch/internal/indicator"
	"github.com/KevinKickass/ThermoWatch/internal/report"
	"github.com/KevinKickass/ThermoWatch/internal/types"
	"go.uber.org/zap"
)

// ErrHalted is returned once bring-up failed. The indicator stays red.
var ErrHalted = errors.New("monitor halted")

// Sink receives the per-cycle report.
type Sink interface {
	Channel(r report.ChannelResult) error
	Cycle(cycle uint64, level health.Level) error
}

type Options struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	DegradedMode bool
}

type Monitor struct {
	channels  []*Channel
	active    []*Channel
	indicator indicator.Indicator
	sink      Sink
	opts      Options
	logger    *zap.Logger

	mu              sync.RWMutex
	state           State
	lastStateChange time.Time
	health          health.Level
	cycles          uint64
	haltErr         error
}

func New(channels []*Channel, ind indicator.Indicator, sink Sink, opts Options, logger *zap.Logger) *Monitor {
	ordered := append([]*Channel(nil), channels...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].pollsBefore(ordered[j])
	})

	return &Monitor{
		channels:        ordered,
		indicator:       ind,
		sink:            sink,
		opts:            opts,
		logger:          logger,
		state:           StateInitializing,
		lastStateChange: time.Now(),
	}
}

// Run brings the channels up and polls until ctx is done. After a failed
// bring-up it polls nothing, keeps the indicator red and only returns when
// ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Bringup(ctx); err != nil {
		if errors.Is(err, ErrHalted) {
			<-ctx.Done()
		}
		return err
	}

	m.logger.Info("Poll loop started",
		zap.Duration("interval", m.opts.PollInterval),
		zap.Int("channels", len(m.active)))

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	m.PollOnce()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Poll loop stopped", zap.Uint64("cycles", m.Status().Cycles))
			return nil
		case <-ticker.C:
			m.PollOnce()
		}
	}
}

// Bringup waits the settle delay and initializes every channel in poll
// order. It returns an error wrapping ErrHalted when the system must halt.
func (m *Monitor) Bringup(ctx context.Context) error {
	m.setColor(indicator.ColorInit)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.opts.SettleDelay):
	}

	active := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		err := ch.Initialize()
		if err == nil {
			m.logger.Info("Channel initialized",
				zap.Int("channel", ch.Def.Index),
				zap.String("name", ch.Def.Name),
				zap.String("family", string(ch.Def.Family)),
				zap.String("chip_select", ch.Def.ChipSelect),
				zap.String("channel_id", ch.ID.String()))
			active = append(active, ch)
			continue
		}

		if ch.Def.Family == types.FamilyTypeB && m.opts.DegradedMode {
			m.logger.Warn("Channel bring-up failed, continuing without it",
				zap.Int("channel", ch.Def.Index),
				zap.String("family", string(ch.Def.Family)),
				zap.Error(err))
			continue
		}

		return m.halt(fmt.Errorf("%w: %s bring-up: %w", ErrHalted, ch.Def.Label(), err))
	}

	if len(active) == 0 {
		return m.halt(fmt.Errorf("%w: no channel came up", ErrHalted))
	}

	m.mu.Lock()
	m.active = active
	m.mu.Unlock()

	return m.setState(StateRunning)
}

// PollOnce runs one full cycle over the active channels and returns the
// aggregated health. Outside RUNNING it reads nothing and leaves the
// indicator alone.
func (m *Monitor) PollOnce() health.Level {
	if status := m.Status(); status.State != StateRunning {
		return status.Health
	}

	results := make([]report.ChannelResult, 0, len(m.active))
	verdicts := make([]fault.Verdict, 0, len(m.active))

	for _, ch := range m.active {
		s := ch.Sample()
		verdicts = append(verdicts, s.Verdict)
		results = append(results, ch.result(s))

		if s.Err != nil {
			m.logger.Warn("Channel read failed",
				zap.Int("channel", ch.Def.Index),
				zap.Error(s.Err))
		} else if s.Verdict.HasFault {
			m.logger.Debug("Channel fault",
				zap.Int("channel", ch.Def.Index),
				zap.Uint8("mask", s.Faults.Mask),
				zap.Strings("faults", s.Faults.Names()),
				zap.Bool("critical", s.Verdict.IsCritical))
		}
	}

	level := health.Aggregate(verdicts...)
	m.setColor(indicator.ForHealth(level))

	m.mu.Lock()
	m.cycles++
	cycle := m.cycles
	previous := m.health
	m.health = level
	m.mu.Unlock()

	for _, r := range results {
		if err := m.sink.Channel(r); err != nil {
			m.logger.Error("Report failed", zap.Error(err))
		}
	}
	if err := m.sink.Cycle(cycle, level); err != nil {
		m.logger.Error("Report failed", zap.Error(err))
	}

	if cycle == 1 || level != previous {
		m.logger.Info("System health changed",
			zap.String("health", level.String()),
			zap.String("previous", previous.String()),
			zap.Uint64("cycle", cycle))
	}

	return level
}

// Status returns a snapshot for logging and diagnostics.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:           m.state,
		Health:          m.health,
		Cycles:          m.cycles,
		ActiveChannels:  len(m.active),
		LastStateChange: m.lastStateChange,
	}
	if m.haltErr != nil {
		status.Error = m.haltErr.Error()
	}
	return status
}

// Channels lists every configured channel in poll order.
func (m *Monitor) Channels() []types.ChannelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	online := make(map[*Channel]bool, len(m.active))
	for _, ch := range m.active {
		online[ch] = true
	}

	infos := make([]types.ChannelInfo, 0, len(m.channels))
	for _, ch := range m.channels {
		infos = append(infos, ch.Info(online[ch]))
	}
	return infos
}

func (m *Monitor) halt(err error) error {
	m.mu.Lock()
	m.haltErr = err
	m.health = health.Critical
	m.mu.Unlock()

	if stateErr := m.setState(StateHalted); stateErr != nil {
		return stateErr
	}
	m.setColor(indicator.ColorCritical)

	m.logger.Error("System halted", zap.Error(err))
	return err
}

func (m *Monitor) setState(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ValidateTransition(m.state, state); err != nil {
		return err
	}

	previous := m.state
	m.state = state
	m.lastStateChange = time.Now()

	m.logger.Info("Monitor state changed",
		zap.String("state", state.String()),
		zap.String("previous", previous.String()))

	return nil
}

func (m *Monitor) setColor(c indicator.Color) {
	if err := m.indicator.SetColor(c); err != nil {
		m.logger.Error("Indicator update failed",
			zap.Stringer("color", c),
			zap.Error(err))
	}
}
