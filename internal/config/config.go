// Package config provides configuration management for cortexportrait
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/normanking/cortexportrait/internal/ambient"
	"github.com/normanking/cortexportrait/internal/audio"
	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/ingest"
	"github.com/normanking/cortexportrait/internal/lipsync"
	"github.com/normanking/cortexportrait/internal/logging"
	"github.com/normanking/cortexportrait/internal/rendertree"
)

const (
	EnvPrefix = "CORTEXPORTRAIT"
	dirName   = ".cortexportrait"
)

// Config holds all application configuration
type Config struct {
	Expression ExpressionConfig          `mapstructure:"expression"`
	LipSync    lipsync.Config            `mapstructure:"lipsync"`
	Blink      ambient.BlinkConfig       `mapstructure:"blink"`
	Idle       ambient.ContentmentConfig `mapstructure:"idle"`
	Crossfade  ambient.CrossfadeConfig   `mapstructure:"crossfade"`
	Breathing  ambient.BreathingConfig   `mapstructure:"breathing"`
	Audio      audio.PlaybackConfig      `mapstructure:"audio"`
	RenderTree RenderTreeConfig          `mapstructure:"render_tree"`
	Feed       FeedConfig                `mapstructure:"feed"`
	Ingest     ingest.Config             `mapstructure:"ingest"`
	Log        logging.Config            `mapstructure:"log"`
}

// ExpressionConfig configures the expression state machine and tick rate
type ExpressionConfig struct {
	TransitionTicks int64 `mapstructure:"transition_ticks"`
	DurationTicks   int64 `mapstructure:"duration_ticks"`
	TickRate        int   `mapstructure:"tick_rate"` // ticks per second
	// Seed fixes the random source; 0 seeds from the clock.
	Seed uint64 `mapstructure:"seed"`
}

// Machine returns the state machine settings.
func (e ExpressionConfig) Machine() expression.Config {
	return expression.Config{
		TransitionTicks: e.TransitionTicks,
		DurationTicks:   e.DurationTicks,
	}
}

// TickInterval is the wall-clock length of one tick.
func (e ExpressionConfig) TickInterval() time.Duration {
	if e.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(e.TickRate)
}

// RenderTreeConfig locates the per-character render-tree files
type RenderTreeConfig struct {
	Dir         string `mapstructure:"dir"`
	DefaultFile string `mapstructure:"default_file"`
	Watch       bool   `mapstructure:"watch"` // hot reload on file changes
}

// FeedConfig configures the websocket frame feed
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, _ := GetConfigDir()
	exprDefaults := expression.DefaultConfig()
	return &Config{
		Expression: ExpressionConfig{
			TransitionTicks: exprDefaults.TransitionTicks,
			DurationTicks:   exprDefaults.DurationTicks,
			TickRate:        60,
		},
		LipSync:   lipsync.DefaultConfig(),
		Blink:     ambient.DefaultBlinkConfig(),
		Idle:      ambient.DefaultContentmentConfig(),
		Crossfade: ambient.DefaultCrossfadeConfig(),
		Breathing: ambient.DefaultBreathingConfig(),
		Audio:     audio.DefaultPlaybackConfig(),
		RenderTree: RenderTreeConfig{
			Dir:         filepath.Join(dir, "render_trees"),
			DefaultFile: rendertree.DefaultFileName,
			Watch:       true,
		},
		Feed: FeedConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
			Path:    "/frames",
		},
		Ingest: ingest.DefaultConfig(),
		Log:    logging.DefaultConfig(),
	}
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable overrides, e.g. CORTEXPORTRAIT_LIPSYNC_GAIN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := toMap(DefaultConfig())
	if err != nil {
		return nil, err
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v, nil
}

// Load reads configuration from ~/.cortexportrait/config.yaml and the
// environment, creating the file with defaults when absent.
func Load() (*Config, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return DefaultConfig(), err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads configuration from path and the environment. A missing
// file is created with defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	v, err := newViper()
	if err != nil {
		return cfg, err
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		// Config file not found, use defaults and create one
		if err := SaveTo(cfg, path); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to ~/.cortexportrait/config.yaml
func Save(cfg *Config) error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return SaveTo(cfg, filepath.Join(dir, "config.yaml"))
}

// SaveTo writes the configuration to path
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	sections, err := toMap(cfg)
	if err != nil {
		return err
	}

	v := viper.New()
	for k, val := range sections {
		v.Set(k, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// toMap flattens cfg into nested maps keyed by the mapstructure tags.
func toMap(cfg *Config) (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(cfg, &out); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, dirName), nil
}
