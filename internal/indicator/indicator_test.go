package indicator

import (
	"bytes"
	"testing"

	"github.com/KevinKickass/ThermoWatch/internal/health"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"periph.io/x/conn/v3/spi/spitest"
)

func TestForHealth(t *testing.T) {
	tests := []struct {
		level health.Level
		want  Color
	}{
		{health.OK, 0x00FF00},
		{health.Warning, 0xFFFF00},
		{health.Critical, 0xFF0000},
	}
	for _, tt := range tests {
		if got := ForHealth(tt.level); got != tt.want {
			t.Errorf("ForHealth(%s) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestColorRGB(t *testing.T) {
	r, g, b := ColorWarning.RGB()
	if r != 0xFF || g != 0xFF || b != 0x00 {
		t.Errorf("RGB() = %02X %02X %02X", r, g, b)
	}
	if s := ColorInit.String(); s != "#0000FF" {
		t.Errorf("String() = %q", s)
	}
}

func TestLogIndicatorLogsChangesOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ind := NewLog(zap.New(core))

	for _, c := range []Color{ColorInit, ColorOK, ColorOK, ColorCritical} {
		if err := ind.SetColor(c); err != nil {
			t.Fatalf("SetColor: %v", err)
		}
	}

	if logs.Len() != 3 {
		t.Errorf("expected 3 log entries, got %d", logs.Len())
	}
	if c, ok := ind.Current(); !ok || c != ColorCritical {
		t.Errorf("Current() = %s, %v", c, ok)
	}
}

type fakePixel struct {
	written [][]byte
	halted  bool
}

func (f *fakePixel) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakePixel) Halt() error {
	f.halted = true
	return nil
}

func TestNeoPixelScalesBrightness(t *testing.T) {
	px := &fakePixel{}
	n := &NeoPixel{dev: px, brightness: 51}

	if err := n.SetColor(ColorWarning); err != nil {
		t.Fatalf("SetColor: %v", err)
	}

	got := px.written[0]
	if got[0] != 51 || got[1] != 51 || got[2] != 0 {
		t.Errorf("pixel = % X, want 33 33 00", got)
	}
}

func lastWrite(t *testing.T, rec *spitest.Record) []byte {
	t.Helper()
	if len(rec.Ops) == 0 {
		t.Fatal("nothing written to the SPI port")
	}
	return rec.Ops[len(rec.Ops)-1].W
}

func TestNeoPixelOnSPIPort(t *testing.T) {
	rec := &spitest.Record{}
	n, err := newNeoPixel(rec, 255)
	if err != nil {
		t.Fatalf("newNeoPixel: %v", err)
	}

	if err := n.SetColor(ColorWarning); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	warning := append([]byte(nil), lastWrite(t, rec)...)
	if len(warning) == 0 {
		t.Fatal("empty NRZ stream for WARNING")
	}

	if err := n.SetColor(ColorOff); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	if bytes.Equal(warning, lastWrite(t, rec)) {
		t.Error("WARNING and OFF produced the same NRZ stream")
	}

	if err := n.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
