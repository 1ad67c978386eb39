package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"go-loop/debug"
	"go-loop/loop"
	"go-loop/midi"
)

// OutputConfig is the synth the loop plays through
type OutputConfig struct {
	PortName string `json:"portName,omitempty"`
	Channel  int    `json:"channel,omitempty"` // 1-16
}

// ControlConfig is an optional footswitch or keyboard that starts and stops the loop
type ControlConfig struct {
	PortName string          `json:"portName,omitempty"`
	Enabled  bool            `json:"enabled"`
	Map      midi.ControlMap `json:"map"`
}

// LoopDefaults seed the loop settings at startup
type LoopDefaults struct {
	MaxLoops          int     `json:"maxLoops"`
	CrossfadeEnabled  bool    `json:"crossfadeEnabled"`
	CrossfadeDuration float64 `json:"crossfadeDuration"`
	FadeInDuration    float64 `json:"fadeInDuration"`
	FadeOutDuration   float64 `json:"fadeOutDuration"`
	MaxLoopDuration   float64 `json:"maxLoopDuration"`
	QuantizeEnabled   bool    `json:"quantizeEnabled"`
	QuantizeGrid      float64 `json:"quantizeGrid"`
	SwingAmount       float64 `json:"swingAmount"`
	SwingDamping      float64 `json:"swingDamping,omitempty"`
	DuckLevel         float64 `json:"duckLevel,omitempty"`
	WindowSize        int     `json:"windowSize,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastTempo   int    `json:"lastTempo,omitempty"`
	LastProject string `json:"lastProject,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Output  OutputConfig  `json:"output"`
	Control ControlConfig `json:"control"`
	Loop    LoopDefaults  `json:"loop"`
	UI      UIConfig      `json:"ui,omitempty"`
	Debug   bool          `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	d := loop.DefaultConfig()
	return &Config{
		Output: OutputConfig{Channel: 1},
		Control: ControlConfig{
			Map: midi.DefaultControlMap(),
		},
		Loop: LoopDefaults{
			MaxLoops:          d.MaxLoops,
			CrossfadeEnabled:  true,
			CrossfadeDuration: d.CrossfadeDuration,
			FadeOutDuration:   0.1,
			MaxLoopDuration:   d.MaxLoopDuration,
			QuantizeGrid:      d.QuantizeGrid,
			SwingDamping:      d.SwingDamping,
			DuckLevel:         d.DuckLevel,
			WindowSize:        d.WindowSize,
		},
		UI: UIConfig{
			LastTempo: 120,
		},
	}
}

// ToLoopConfig builds the loop settings for a sequence recorded at originalTempo
// and played at targetTempo. Bounds are left for detection.
func (d LoopDefaults) ToLoopConfig(originalTempo, targetTempo float64) loop.Config {
	return loop.Config{
		Enabled:           true,
		MaxLoops:          d.MaxLoops,
		CrossfadeEnabled:  d.CrossfadeEnabled,
		CrossfadeDuration: d.CrossfadeDuration,
		FadeInDuration:    d.FadeInDuration,
		FadeOutDuration:   d.FadeOutDuration,
		MaxLoopDuration:   d.MaxLoopDuration,
		QuantizeEnabled:   d.QuantizeEnabled,
		QuantizeGrid:      d.QuantizeGrid,
		SwingAmount:       d.SwingAmount,
		OriginalTempo:     originalTempo,
		TargetTempo:       targetTempo,
		SwingDamping:      d.SwingDamping,
		DuckLevel:         d.DuckLevel,
		WindowSize:        d.WindowSize,
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-loop"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk (defaults if not found), then applies
// environment overrides. A .env file in the working directory is honoured.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		debug.Warn("config", ".env ignored: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path, falling back to defaults if it does not exist
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		// Fields missing from the file keep their defaults
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	debug.Log("config", "loaded %s: output=%q control=%q", path, cfg.Output.PortName, cfg.Control.PortName)
	return cfg, nil
}

// applyEnv overrides file values with GOLOOP_* variables
func (c *Config) applyEnv() {
	c.Output.PortName = getEnv("GOLOOP_OUTPUT_PORT", c.Output.PortName)
	if port := getEnv("GOLOOP_CONTROL_PORT", ""); port != "" {
		c.Control.PortName = port
		c.Control.Enabled = true
	}
	if v := getEnv("GOLOOP_DEBUG", ""); v != "" {
		c.Debug, _ = strconv.ParseBool(v)
	}
	if v := getEnv("GOLOOP_WINDOW", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Loop.WindowSize = n
		} else {
			debug.Warn("config", "GOLOOP_WINDOW=%q ignored", v)
		}
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
