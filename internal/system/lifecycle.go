package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/KevinKickass/ThermoWatch/internal/channels"
	"github.com/KevinKickass/ThermoWatch/internal/config"
	"github.com/KevinKickass/ThermoWatch/internal/indicator"
	"github.com/KevinKickass/ThermoWatch/internal/monitor"
	"github.com/KevinKickass/ThermoWatch/internal/report"
	"github.com/KevinKickass/ThermoWatch/internal/thermocouple"
	"github.com/KevinKickass/ThermoWatch/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"periph.io/x/host/v3"
)

// LifecycleManager builds the bus, channels and indicator from config and
// owns them for the life of the process.
type LifecycleManager struct {
	config  *config.Config
	logger  *zap.Logger
	runID   uuid.UUID
	out     io.Writer
	monitor *monitor.Monitor

	closersMu sync.Mutex
	closers   []io.Closer

	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	runID := uuid.New()
	return &LifecycleManager{
		config: cfg,
		logger: logger.With(zap.String("run_id", runID.String())),
		runID:  runID,
		out:    os.Stdout,
	}
}

// Start wires everything up. Channel bring-up happens later in Run.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting ThermoWatch",
		zap.Bool("simulate", lm.config.Bus.Simulate),
		zap.String("layout", lm.config.Channels.Layout))

	loader, err := channels.NewLoader(lm.config.Channels.SearchPaths)
	if err != nil {
		return fmt.Errorf("failed to create layout loader: %w", err)
	}

	layout, err := loader.Load(lm.config.Channels.Layout)
	if err != nil {
		return fmt.Errorf("failed to load channel layout: %w", err)
	}

	lm.logger.Info("Channel layout loaded",
		zap.String("layout_id", layout.Layout.ID),
		zap.String("board", layout.Layout.Board),
		zap.Int("channels", len(layout.Channels)))

	var (
		chans []*monitor.Channel
		ind   indicator.Indicator
	)
	if lm.config.Bus.Simulate {
		chans, err = lm.buildSimulated(layout)
		ind = indicator.NewLog(lm.logger)
	} else {
		chans, ind, err = lm.buildHardware(layout)
	}
	if err != nil {
		lm.closeAll()
		return err
	}

	lm.monitor = monitor.New(chans, ind, report.NewText(lm.out), monitor.Options{
		PollInterval: lm.config.Monitor.PollInterval,
		SettleDelay:  lm.config.Monitor.SettleDelay,
		DegradedMode: lm.config.Monitor.DegradedMode,
	}, lm.logger)

	return nil
}

// Run blocks until ctx is done. A halted monitor is not an error for the
// process: it keeps the indicator red until it is stopped.
func (lm *LifecycleManager) Run(ctx context.Context) error {
	if lm.monitor == nil {
		return errors.New("lifecycle not started")
	}

	err := lm.monitor.Run(ctx)
	if errors.Is(err, monitor.ErrHalted) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (lm *LifecycleManager) Monitor() *monitor.Monitor {
	return lm.monitor
}

// Shutdown releases the bus and indicator ports.
func (lm *LifecycleManager) Shutdown() {
	lm.shutdownOnce.Do(func() {
		if lm.monitor != nil {
			status := lm.monitor.Status()
			lm.logger.Info("Shutting down",
				zap.String("state", status.State.String()),
				zap.String("health", status.Health.String()),
				zap.Uint64("cycles", status.Cycles))

			for _, info := range lm.monitor.Channels() {
				if !info.Online {
					lm.logger.Warn("Channel was offline",
						zap.Int("channel", info.Index),
						zap.String("family", string(info.Family)),
						zap.String("chip_select", info.ChipSelect))
				}
			}
		}
		lm.closeAll()
	})
}

func (lm *LifecycleManager) buildHardware(layout *types.ChannelLayout) ([]*monitor.Channel, indicator.Indicator, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	bus, port, err := thermocouple.OpenSPI(lm.config.Bus.Port, lm.config.Bus.SpeedHz, lm.config.Bus.Mode)
	if err != nil {
		return nil, nil, err
	}
	lm.addCloser(port)

	chans := make([]*monitor.Channel, 0, len(layout.Channels))
	for _, def := range layout.Channels {
		cs, err := thermocouple.ChipSelect(def.ChipSelect)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", def.Label(), err)
		}
		ch, err := lm.newChannel(def, bus, cs)
		if err != nil {
			return nil, nil, err
		}
		chans = append(chans, ch)
	}

	if !lm.config.Indicator.Enabled {
		return chans, indicator.NewLog(lm.logger), nil
	}

	px, err := indicator.OpenNeoPixel(lm.config.Indicator.Port, lm.config.Indicator.Brightness)
	if err != nil {
		return nil, nil, err
	}
	lm.addCloser(px)

	return chans, px, nil
}

func (lm *LifecycleManager) buildSimulated(layout *types.ChannelLayout) ([]*monitor.Channel, error) {
	sim := thermocouple.NewSimulator()
	bus := thermocouple.NewBus(sim)
	sc := lm.config.Simulation

	chans := make([]*monitor.Channel, 0, len(layout.Channels))
	for _, def := range layout.Channels {
		switch def.Family {
		case types.FamilyTypeA:
			sim.AddMAX31855(def.ChipSelect).Set(sc.Temperature, sc.SimulatedFault(def.Index))
		case types.FamilyTypeB:
			sim.AddMAX31856(def.ChipSelect).Set(sc.Temperature, sc.SimulatedFault(def.Index))
		}

		ch, err := lm.newChannel(def, bus, sim.Line(def.ChipSelect))
		if err != nil {
			return nil, err
		}
		chans = append(chans, ch)
	}

	lm.logger.Warn("Running on simulated converters",
		zap.Float64("temperature", sc.Temperature),
		zap.Int("faulted_channels", len(sc.Faults)))

	return chans, nil
}

func (lm *LifecycleManager) newChannel(def types.ChannelDefinition, bus *thermocouple.Bus, cs thermocouple.Select) (*monitor.Channel, error) {
	sensor, err := thermocouple.New(def, bus, cs)
	if err != nil {
		return nil, err
	}
	return monitor.NewChannel(def, sensor)
}

func (lm *LifecycleManager) addCloser(c io.Closer) {
	lm.closersMu.Lock()
	defer lm.closersMu.Unlock()
	lm.closers = append(lm.closers, c)
}

func (lm *LifecycleManager) closeAll() {
	lm.closersMu.Lock()
	defer lm.closersMu.Unlock()

	for i := len(lm.closers) - 1; i >= 0; i-- {
		if err := lm.closers[i].Close(); err != nil {
			lm.logger.Error("Close failed", zap.Error(err))
		}
	}
	lm.closers = nil
}
