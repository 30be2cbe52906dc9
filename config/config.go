// Package config provides configuration loading for localization sessions.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	localize "github.com/milosgajdos/go-localize"
	"github.com/milosgajdos/go-localize/particle/pf"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all localization session configuration parameters.
type Config struct {
	Filter  FilterConfig  `yaml:"filter"`
	Noise   NoiseConfig   `yaml:"noise"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Vehicle VehicleConfig `yaml:"vehicle"`
	Stream  StreamConfig  `yaml:"stream"`
	Log     LogConfig     `yaml:"log"`
}

// FilterConfig holds particle filter parameters.
type FilterConfig struct {
	Particles    int     `yaml:"particles"`
	Seed         uint64  `yaml:"seed"`          // 0 seeds with current time
	Workers      int     `yaml:"workers"`       // 0 uses GOMAXPROCS
	Resampler    string  `yaml:"resampler"`     // roulette or systematic
	RangeGate    bool    `yaml:"range_gate"`    // only consider landmarks within sensor range
	YawThreshold float64 `yaml:"yaw_threshold"` // straight motion yaw rate threshold
}

// NoiseConfig holds standard deviations of the filter noise.
type NoiseConfig struct {
	Init     [3]float64 `yaml:"init,flow"`     // initial pose x, y, theta
	Motion   [3]float64 `yaml:"motion,flow"`   // motion x, y, theta
	Landmark [2]float64 `yaml:"landmark,flow"` // landmark measurement x, y
}

// SensorConfig holds simulated sensor parameters.
type SensorConfig struct {
	Range float64 `yaml:"range"`
	DT    float64 `yaml:"dt"`
}

// PoseConfig holds agent pose.
type PoseConfig struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Theta float64 `yaml:"theta"`
}

// VehicleConfig holds simulated vehicle parameters.
type VehicleConfig struct {
	Start    PoseConfig `yaml:"start"`
	Velocity float64    `yaml:"velocity"`
	YawRate  float64    `yaml:"yaw_rate"`
	Steps    int        `yaml:"steps"`
}

// StreamConfig holds estimate streaming parameters.
type StreamConfig struct {
	Listen string `yaml:"listen"` // empty disables streaming
	Buffer int    `yaml:"buffer"` // per viewer message buffer
}

// LogConfig holds logging parameters.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns configuration built from embedded defaults.
func Default() (*Config, error) {
	return Load("")
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
// The loaded configuration is validated.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration parameters are within their domains.
func (c *Config) Validate() error {
	if c.Filter.Particles <= 0 {
		return fmt.Errorf("invalid particle count: %d", c.Filter.Particles)
	}

	switch pf.Resampler(c.Filter.Resampler) {
	case pf.Roulette, pf.Systematic:
	default:
		return fmt.Errorf("invalid resampler: %q", c.Filter.Resampler)
	}

	if c.Filter.YawThreshold < 0 {
		return fmt.Errorf("invalid yaw threshold: %f", c.Filter.YawThreshold)
	}

	std := make([]float64, 0, 8)
	std = append(std, c.Noise.Init[:]...)
	std = append(std, c.Noise.Motion[:]...)
	std = append(std, c.Noise.Landmark[:]...)
	for _, s := range std {
		if s < 0 {
			return fmt.Errorf("invalid noise standard deviation: %f", s)
		}
	}

	if c.Sensor.Range <= 0 {
		return fmt.Errorf("invalid sensor range: %f", c.Sensor.Range)
	}

	if c.Sensor.DT <= 0 {
		return fmt.Errorf("invalid time step: %f", c.Sensor.DT)
	}

	if c.Vehicle.Steps < 0 {
		return fmt.Errorf("invalid step count: %d", c.Vehicle.Steps)
	}

	if c.Stream.Buffer < 0 {
		return fmt.Errorf("invalid stream buffer: %d", c.Stream.Buffer)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel returns the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	return level, nil
}

// Pose returns the configured pose.
func (p PoseConfig) Pose() localize.Pose {
	return localize.Pose{X: p.X, Y: p.Y, Theta: p.Theta}
}

// Control returns vehicle control input.
func (v VehicleConfig) Control() localize.Control {
	return localize.Control{Velocity: v.Velocity, YawRate: v.YawRate}
}

// PF returns particle filter configuration which logs to logger.
// The filter propagator is left to the caller.
func (f FilterConfig) PF(logger *slog.Logger) *pf.Config {
	return &pf.Config{
		ParticleCount: f.Particles,
		Seed:          f.Seed,
		Workers:       f.Workers,
		Resampler:     pf.Resampler(f.Resampler),
		RangeGate:     f.RangeGate,
		Logger:        logger,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
