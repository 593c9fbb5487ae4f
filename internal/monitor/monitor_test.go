package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/ThermoWatch/internal/health"
	"github.com/KevinKickass/ThermoWatch/internal/indicator"
	"github.com/KevinKickass/ThermoWatch/internal/report"
	"github.com/KevinKickass/ThermoWatch/internal/thermocouple"
	"github.com/KevinKickass/ThermoWatch/internal/types"
	"go.uber.org/zap/zaptest"
)

type recordingIndicator struct {
	mu     sync.Mutex
	colors []indicator.Color
}

func (r *recordingIndicator) SetColor(c indicator.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.colors = append(r.colors, c)
	return nil
}

func (r *recordingIndicator) last() indicator.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.colors) == 0 {
		return indicator.ColorOff
	}
	return r.colors[len(r.colors)-1]
}

type settable interface {
	Set(temperature float64, fault uint8)
}

type rig struct {
	monitor *Monitor
	sim     *thermocouple.Simulator
	bus     *thermocouple.Bus
	chips   map[int]settable
	ind     *recordingIndicator
	out     *bytes.Buffer
}

func csName(index int) string {
	return fmt.Sprintf("CS%d", index)
}

func def(index int, family types.Family) types.ChannelDefinition {
	return types.ChannelDefinition{Index: index, Family: family, ChipSelect: csName(index)}
}

func typeAOnly() []types.ChannelDefinition {
	defs := make([]types.ChannelDefinition, 6)
	for i := range defs {
		defs[i] = def(i, types.FamilyTypeA)
	}
	return defs
}

func mixed() []types.ChannelDefinition {
	return []types.ChannelDefinition{
		def(0, types.FamilyTypeA),
		def(1, types.FamilyTypeA),
		def(2, types.FamilyTypeA),
		def(3, types.FamilyTypeB),
		def(4, types.FamilyTypeB),
		def(5, types.FamilyTypeB),
	}
}

// newRig attaches a simulated converter for every definition except the
// indices listed in missing.
func newRig(t *testing.T, defs []types.ChannelDefinition, opts Options, missing ...int) *rig {
	t.Helper()

	sim := thermocouple.NewSimulator()
	bus := thermocouple.NewBus(sim)
	r := &rig{sim: sim, bus: bus, chips: make(map[int]settable), ind: &recordingIndicator{}, out: &bytes.Buffer{}}

	skip := make(map[int]bool)
	for _, idx := range missing {
		skip[idx] = true
	}

	channels := make([]*Channel, 0, len(defs))
	for _, d := range defs {
		if !skip[d.Index] {
			if d.Family == types.FamilyTypeA {
				r.chips[d.Index] = sim.AddMAX31855(d.ChipSelect)
			} else {
				r.chips[d.Index] = sim.AddMAX31856(d.ChipSelect)
			}
		}

		sensor, err := thermocouple.New(d, bus, sim.Line(d.ChipSelect))
		if err != nil {
			t.Fatalf("driver for channel %d: %v", d.Index, err)
		}
		ch, err := NewChannel(d, sensor)
		if err != nil {
			t.Fatalf("channel %d: %v", d.Index, err)
		}
		channels = append(channels, ch)
	}

	r.monitor = New(channels, r.ind, report.NewText(r.out), opts, zaptest.NewLogger(t))
	return r
}

func (r *rig) bringup(t *testing.T) {
	t.Helper()
	if err := r.monitor.Bringup(context.Background()); err != nil {
		t.Fatalf("Bringup: %v", err)
	}
}

func TestAllChannelsCleanIsOK(t *testing.T) {
	r := newRig(t, typeAOnly(), Options{})
	r.bringup(t)

	if got := r.monitor.PollOnce(); got != health.OK {
		t.Fatalf("health: got %s, want OK", got)
	}
	if c := r.ind.last(); c != 0x00FF00 {
		t.Fatalf("indicator: got %s, want #00FF00", c)
	}
	if r.ind.colors[0] != indicator.ColorInit {
		t.Errorf("first color: got %s, want INIT", r.ind.colors[0])
	}
	if !strings.Contains(r.out.String(), "CH0: 21.50 C") {
		t.Errorf("report missing temperature line:\n%s", r.out.String())
	}
}

func TestSingleOpenCircuitIsWarning(t *testing.T) {
	r := newRig(t, typeAOnly(), Options{})
	r.bringup(t)

	r.chips[2].Set(0, 0b001)

	if got := r.monitor.PollOnce(); got != health.Warning {
		t.Fatalf("health: got %s, want WARNING", got)
	}
	if c := r.ind.last(); c != 0xFFFF00 {
		t.Fatalf("indicator: got %s, want #FFFF00", c)
	}
	if !strings.Contains(r.out.String(), "CH2: FAULT 0x01 OPEN_CIRCUIT") {
		t.Errorf("report missing fault line:\n%s", r.out.String())
	}
}

func TestTypeBAllFlagsIsCritical(t *testing.T) {
	r := newRig(t, mixed(), Options{})
	r.bringup(t)

	r.chips[0].Set(0, 0x01)
	r.chips[3].Set(0, 0x41)
	r.chips[4].Set(0, 0xFF)

	if got := r.monitor.PollOnce(); got != health.Critical {
		t.Fatalf("health: got %s, want CRITICAL", got)
	}
	if c := r.ind.last(); c != 0xFF0000 {
		t.Fatalf("indicator: got %s, want #FF0000", c)
	}
}

func TestDisconnectedTypeBIsWarning(t *testing.T) {
	r := newRig(t, mixed(), Options{})
	r.bringup(t)

	r.chips[5].Set(0, 0x41)

	if got := r.monitor.PollOnce(); got != health.Warning {
		t.Fatalf("health: got %s, want WARNING", got)
	}
	if strings.Contains(r.out.String(), "CH5: 0.00 C") {
		t.Errorf("temperature must be suppressed for faulted channel:\n%s", r.out.String())
	}
}

func TestFaultClearsNextCycle(t *testing.T) {
	r := newRig(t, mixed(), Options{})
	r.bringup(t)

	r.chips[1].Set(0, 0x06)
	if got := r.monitor.PollOnce(); got != health.Critical {
		t.Fatalf("first cycle: got %s, want CRITICAL", got)
	}

	r.chips[1].Set(300.5, 0)
	if got := r.monitor.PollOnce(); got != health.OK {
		t.Fatalf("second cycle: got %s, want OK", got)
	}
	if !strings.Contains(r.out.String(), "CH1: 300.50 C") {
		t.Errorf("report missing recovered reading:\n%s", r.out.String())
	}
	if s := r.monitor.Status(); s.Cycles != 2 || s.Health != health.OK {
		t.Errorf("status: %+v", s)
	}
}

func TestBusErrorIsCritical(t *testing.T) {
	r := newRig(t, mixed(), Options{})
	r.bringup(t)

	r.sim.FailTransfers(csName(3), errors.New("miso stuck low"))

	if got := r.monitor.PollOnce(); got != health.Critical {
		t.Fatalf("health: got %s, want CRITICAL", got)
	}
	if !strings.Contains(r.out.String(), "CH3: BUS ERROR") {
		t.Errorf("report missing bus error:\n%s", r.out.String())
	}
}

type indexSink struct {
	indices []int
}

func (s *indexSink) Channel(r report.ChannelResult) error {
	s.indices = append(s.indices, r.Index)
	return nil
}

func (s *indexSink) Cycle(uint64, health.Level) error { return nil }

func TestPollOrder(t *testing.T) {
	defs := []types.ChannelDefinition{
		def(5, types.FamilyTypeB),
		def(2, types.FamilyTypeA),
		def(3, types.FamilyTypeB),
		def(4, types.FamilyTypeA),
		def(0, types.FamilyTypeB),
		def(1, types.FamilyTypeA),
	}
	r := newRig(t, defs, Options{})
	sink := &indexSink{}
	r.monitor.sink = sink
	r.bringup(t)

	r.monitor.PollOnce()

	want := []int{1, 2, 4, 0, 3, 5}
	if fmt.Sprint(sink.indices) != fmt.Sprint(want) {
		t.Fatalf("poll order: got %v, want %v", sink.indices, want)
	}
}

func TestTypeABringupFailureHalts(t *testing.T) {
	r := newRig(t, mixed(), Options{DegradedMode: true}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.monitor.Run(ctx)
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("Run: got %v, want ErrHalted", err)
	}
	if !errors.Is(err, thermocouple.ErrNotResponding) {
		t.Errorf("Run error should carry the driver cause: %v", err)
	}

	status := r.monitor.Status()
	if status.State != StateHalted || status.Error == "" {
		t.Fatalf("status: %+v", status)
	}
	if c := r.ind.last(); c != 0xFF0000 {
		t.Fatalf("indicator: got %s, want #FF0000", c)
	}

	before := r.bus.Transactions()
	if got := r.monitor.PollOnce(); got != health.Critical {
		t.Errorf("PollOnce while halted: got %s", got)
	}
	if r.bus.Transactions() != before {
		t.Errorf("bus used after halt: %d -> %d", before, r.bus.Transactions())
	}
	if r.out.Len() != 0 {
		t.Errorf("report written after halt:\n%s", r.out.String())
	}
	if c := r.ind.last(); c != 0xFF0000 {
		t.Errorf("indicator changed after halt: %s", c)
	}
}

func TestTypeBBringupFailureHaltsByDefault(t *testing.T) {
	r := newRig(t, mixed(), Options{}, 4)

	err := r.monitor.Bringup(context.Background())
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("Bringup: got %v, want ErrHalted", err)
	}
	if r.monitor.Status().State != StateHalted {
		t.Fatalf("state: got %s", r.monitor.Status().State)
	}
}

func TestDegradedModeSkipsTypeB(t *testing.T) {
	r := newRig(t, mixed(), Options{DegradedMode: true}, 4)
	r.bringup(t)

	if got := r.monitor.PollOnce(); got != health.OK {
		t.Fatalf("health: got %s, want OK", got)
	}
	if s := r.monitor.Status(); s.ActiveChannels != 5 || s.State != StateRunning {
		t.Fatalf("status: %+v", s)
	}
	if strings.Contains(r.out.String(), "CH4") {
		t.Errorf("offline channel reported:\n%s", r.out.String())
	}

	for _, info := range r.monitor.Channels() {
		if info.Online != (info.Index != 4) {
			t.Errorf("channel %d online = %v", info.Index, info.Online)
		}
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	r := newRig(t, mixed(), Options{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	if err := r.monitor.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cycles := r.monitor.Status().Cycles; cycles < 1 {
		t.Fatalf("expected at least one cycle, got %d", cycles)
	}
	if !strings.Contains(r.out.String(), "cycle 1: OK") {
		t.Errorf("report missing first cycle:\n%s", r.out.String())
	}
}

func TestRunCancelledDuringSettle(t *testing.T) {
	r := newRig(t, mixed(), Options{PollInterval: time.Second, SettleDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.monitor.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}
	if r.bus.Transactions() != 0 {
		t.Errorf("bus used before settle delay elapsed")
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(StateInitializing, StateRunning); err != nil {
		t.Errorf("INITIALIZING -> RUNNING: %v", err)
	}
	if err := ValidateTransition(StateInitializing, StateHalted); err != nil {
		t.Errorf("INITIALIZING -> HALTED: %v", err)
	}
	if err := ValidateTransition(StateRunning, StateHalted); err == nil {
		t.Error("RUNNING -> HALTED must be rejected")
	}
	if err := ValidateTransition(StateHalted, StateRunning); err == nil {
		t.Error("HALTED -> RUNNING must be rejected")
	}
}
