// Package config loads and validates the run configuration.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/beam1090/internal/boardsync"
	"github.com/rjboer/beam1090/internal/dsp"
)

// mqttPasswordEnv overrides the broker password so credentials can stay
// out of config files.
const mqttPasswordEnv = "BEAM1090_MQTT_PASSWORD"

type Config struct {
	LogLevel string `yaml:"log_level"`
	Seed     int64  `yaml:"seed"`

	Capture   CaptureConfig   `yaml:"capture"`
	Beam      BeamConfig      `yaml:"beam"`
	Demod     DemodConfig     `yaml:"demod"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Boards    []BoardConfig   `yaml:"boards"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

type CaptureConfig struct {
	Source   string `yaml:"source"`  // mock or net
	Address  string `yaml:"address"`
	Channels int    `yaml:"channels"`
	Samples  int    `yaml:"samples"` // per-channel samples per cycle
	Workers  int    `yaml:"workers"`
	Depth    int    `yaml:"depth"`   // in-flight cycle depth

	// Passed through to the acquisition boundary, unused by the core.
	FrequencyOffsetHz float64 `yaml:"frequency_offset_hz"`

	Noise float64 `yaml:"noise"` // mock source noise sigma
}

type BeamConfig struct {
	Spacing    float64 `yaml:"spacing"`     // wavelengths; presence selects steered mode
	SweepStart float64 `yaml:"sweep_start"` // degrees
	SweepEnd   float64 `yaml:"sweep_end"`   // degrees
	SweepSteps int     `yaml:"sweep_steps"`
}

// Steered reports whether array geometry was given.
func (b BeamConfig) Steered() bool { return b.Spacing > 0 }

// Sweep converts the configured angular range to radians.
func (b BeamConfig) Sweep() dsp.Sweep {
	return dsp.NewSweep(
		b.SweepStart*math.Pi/180,
		b.SweepEnd*math.Pi/180,
		b.SweepSteps,
	)
}

type DemodConfig struct {
	AmbiguityDelta float64 `yaml:"ambiguity_delta"`
	MinContrast    float64 `yaml:"min_contrast"`
	Repair         int     `yaml:"repair"` // highest bit count to correct, 0 disables
}

type SinksConfig struct {
	Console *bool      `yaml:"console"` // nil defaults to on
	Tracker *bool      `yaml:"tracker"` // nil defaults to on
	Raw     RawConfig  `yaml:"raw"`
	MQTT    MQTTConfig `yaml:"mqtt"`
	Capture string     `yaml:"capture"` // compressed capture path
	Archive string     `yaml:"archive"` // sqlite database path
	HTTP    string     `yaml:"http"`    // live view listen address, empty disables
}

// ConsoleEnabled resolves the console sink tri-state.
func (s SinksConfig) ConsoleEnabled() bool { return s.Console == nil || *s.Console }

// TrackerEnabled resolves the aircraft table tri-state.
func (s SinksConfig) TrackerEnabled() bool { return s.Tracker == nil || *s.Tracker }

type RawConfig struct {
	Address string `yaml:"address"`
	Queue   int    `yaml:"queue"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MonitorConfig struct {
	WindowS int     `yaml:"window_s"`
	Margin  float64 `yaml:"margin"`
	Metrics string  `yaml:"metrics"` // /metrics listen address, empty disables
	FFTSize int     `yaml:"fft_size"`
}

// Window returns the reporting interval.
func (m MonitorConfig) Window() time.Duration {
	return time.Duration(m.WindowS) * time.Second
}

type BoardConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"` // empty selects an in-process board
	Role    string `yaml:"role"`
	Clock   string `yaml:"clock"`   // defaults by role
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Service  string `yaml:"service"`
	TimeoutS int    `yaml:"timeout_s"`
}

// Timeout returns the browse duration.
func (d DiscoveryConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutS) * time.Second
}

// Default returns the baseline configuration: a two-channel mock capture
// with random beam weights and the console sink.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates a YAML configuration file. The
// broker password may come from the environment instead of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Capture.Source == "" {
		c.Capture.Source = "mock"
	}
	if c.Capture.Channels == 0 {
		c.Capture.Channels = 2
	}
	if c.Capture.Samples == 0 {
		c.Capture.Samples = 131072
	}
	if c.Capture.Workers == 0 {
		c.Capture.Workers = runtime.NumCPU()
	}
	if c.Capture.Depth == 0 {
		c.Capture.Depth = 4
	}
	if c.Beam.Steered() && c.Beam.SweepSteps == 0 {
		c.Beam.SweepStart = -60
		c.Beam.SweepEnd = 60
		c.Beam.SweepSteps = 121
	}
	if c.Sinks.Raw.Queue == 0 {
		c.Sinks.Raw.Queue = 64
	}
	if v := os.Getenv(mqttPasswordEnv); v != "" {
		c.Sinks.MQTT.Password = v
	}
	if c.Monitor.WindowS == 0 {
		c.Monitor.WindowS = 5
	}
	if c.Monitor.Margin == 0 {
		c.Monitor.Margin = 0.95
	}
	if c.Monitor.FFTSize == 0 {
		c.Monitor.FFTSize = 4096
	}
	if c.Discovery.TimeoutS == 0 {
		c.Discovery.TimeoutS = 5
	}
	for i := range c.Boards {
		b := &c.Boards[i]
		if b.Clock == "" {
			if b.Role == "master" {
				b.Clock = "internal"
			} else {
				b.Clock = "external"
			}
		}
	}
}

// Validate rejects configurations the engine cannot run. Inconsistent
// settings are fatal at startup rather than degraded at runtime.
func (c *Config) Validate() error {
	switch c.Capture.Source {
	case "mock", "net":
	default:
		return fmt.Errorf("unknown capture source %q", c.Capture.Source)
	}
	if c.Capture.Source == "net" && c.Capture.Address == "" && !c.Discovery.Enabled {
		return fmt.Errorf("net capture needs an address or discovery enabled")
	}
	if c.Capture.Channels < 1 {
		return fmt.Errorf("channel count must be positive, got %d", c.Capture.Channels)
	}
	if c.Capture.Samples < 1 {
		return fmt.Errorf("samples per cycle must be positive, got %d", c.Capture.Samples)
	}
	if c.Capture.Workers < 1 {
		return fmt.Errorf("worker count must be positive, got %d", c.Capture.Workers)
	}
	if c.Capture.Depth < 1 {
		return fmt.Errorf("cycle depth must be positive, got %d", c.Capture.Depth)
	}
	if c.Capture.Noise < 0 {
		return fmt.Errorf("noise sigma must not be negative, got %g", c.Capture.Noise)
	}

	if c.Beam.Spacing < 0 {
		return fmt.Errorf("array spacing must not be negative, got %g", c.Beam.Spacing)
	}
	if !c.Beam.Steered() && c.Beam.SweepSteps != 0 {
		return fmt.Errorf("sweep configured without array spacing")
	}

	if c.Demod.Repair < 0 || c.Demod.Repair > 2 {
		return fmt.Errorf("repair budget must be 0..2, got %d", c.Demod.Repair)
	}
	if c.Monitor.Margin <= 0 {
		return fmt.Errorf("monitor margin must be positive, got %g", c.Monitor.Margin)
	}

	masters := 0
	for i, b := range c.Boards {
		role, err := boardsync.ParseRole(b.Role)
		if err != nil {
			return fmt.Errorf("board %d: %w", i, err)
		}
		clock, err := boardsync.ParseClockSource(b.Clock)
		if err != nil {
			return fmt.Errorf("board %d: %w", i, err)
		}
		if role == boardsync.RoleMaster {
			masters++
		}
		if role == boardsync.RoleSlave && clock != boardsync.ClockExternal {
			return fmt.Errorf("board %d: a slave must lock to the external clock", i)
		}
	}
	if len(c.Boards) > 0 && masters != 1 {
		return fmt.Errorf("rig needs exactly one master board, got %d", masters)
	}
	return nil
}

// Level maps the configured log level onto slog. Unknown spellings fall
// back to info.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
