package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Bus        BusConfig        `mapstructure:"bus"`
	Indicator  IndicatorConfig  `mapstructure:"indicator"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type BusConfig struct {
	Port     string `mapstructure:"port"`
	SpeedHz  int64  `mapstructure:"speed_hz"`
	Mode     int    `mapstructure:"mode"`
	Simulate bool   `mapstructure:"simulate"`
}

type IndicatorConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Port       string `mapstructure:"port"`
	Brightness uint8  `mapstructure:"brightness"`
}

type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	// DegradedMode keeps polling when a MAX31856 channel fails bring-up.
	// MAX31855 bring-up failures always halt.
	DegradedMode bool `mapstructure:"degraded_mode"`
}

type ChannelsConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
	Layout      string   `mapstructure:"layout"`
}

// SimulationConfig is only used with bus.simulate.
type SimulationConfig struct {
	Temperature float64        `mapstructure:"temperature"`
	Faults      map[string]int `mapstructure:"faults"` // channel index -> fault bitmask
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("bus.port", "SPI0.0")
	v.SetDefault("bus.speed_hz", 1_000_000)
	v.SetDefault("bus.mode", 1)
	v.SetDefault("bus.simulate", false)
	v.SetDefault("indicator.enabled", true)
	v.SetDefault("indicator.port", "SPI1.0")
	v.SetDefault("indicator.brightness", 64)
	v.SetDefault("monitor.poll_interval", "1s")
	v.SetDefault("monitor.settle_delay", "500ms")
	v.SetDefault("monitor.degraded_mode", false)
	v.SetDefault("channels.search_paths", []string{"configs", "/etc/thermowatch"})
	v.SetDefault("channels.layout", "channels")
	v.SetDefault("simulation.temperature", 21.5)

	// Environment Variables mit Prefix TW_, z.B. TW_BUS_SIMULATE
	v.SetEnvPrefix("TW")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.SettleDelay < 0 {
		return fmt.Errorf("monitor.settle_delay must not be negative, got %s", c.Monitor.SettleDelay)
	}
	if c.Bus.Mode < 0 || c.Bus.Mode > 3 {
		return fmt.Errorf("bus.mode must be 0..3, got %d", c.Bus.Mode)
	}
	if c.Bus.SpeedHz <= 0 {
		return fmt.Errorf("bus.speed_hz must be positive, got %d", c.Bus.SpeedHz)
	}
	if c.Channels.Layout == "" {
		return fmt.Errorf("channels.layout is required")
	}
	for key, mask := range c.Simulation.Faults {
		if _, err := strconv.Atoi(key); err != nil {
			return fmt.Errorf("simulation.faults: %q is not a channel index", key)
		}
		if mask < 0 || mask > 0xFF {
			return fmt.Errorf("simulation.faults.%s: mask must be 0..255, got %d", key, mask)
		}
	}
	return nil
}

// SimulatedFault returns the configured fault bitmask for a channel.
func (s *SimulationConfig) SimulatedFault(index int) uint8 {
	return uint8(s.Faults[strconv.Itoa(index)])
}
