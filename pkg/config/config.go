// Package config loads run configuration from JSON or YAML files with
// QEVO_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/kasuganosora/qevo/pkg/optimizer/genetic"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "QEVO_"

// ErrInvalid marks configuration that failed validation
var ErrInvalid = errors.New("config: invalid configuration")

// Entropy source kinds
const (
	SourcePCG    = "pcg"
	SourceCrypto = "crypto"
	SourceReplay = "replay"
)

// Config is the full run configuration
type Config struct {
	GA      genetic.Config `json:"ga" yaml:"ga" envPrefix:"GA_"`
	Entropy EntropyConfig  `json:"entropy" yaml:"entropy" envPrefix:"ENTROPY_"`
	Log     LogConfig      `json:"log" yaml:"log" envPrefix:"LOG_"`
	Monitor MonitorConfig  `json:"monitor" yaml:"monitor" envPrefix:"MONITOR_"`
}

// EntropyConfig selects and shapes the entropy source
type EntropyConfig struct {
	Source       string  `json:"source" yaml:"source" env:"SOURCE" validate:"oneof=pcg crypto replay"`
	Seed         uint64  `json:"seed" yaml:"seed" env:"SEED"`
	PoolSize     int     `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE" validate:"gt=0"`
	RateLimit    float64 `json:"rate_limit" yaml:"rate_limit" env:"RATE_LIMIT" validate:"gte=0"` // fetches per second, 0 = unlimited
	Burst        int     `json:"burst" yaml:"burst" env:"BURST" validate:"gte=0"`
	TapeDir      string  `json:"tape_dir" yaml:"tape_dir" env:"TAPE_DIR"`
	TapeInMemory bool    `json:"tape_in_memory" yaml:"tape_in_memory" env:"TAPE_IN_MEMORY"`
	Record       bool    `json:"record" yaml:"record" env:"RECORD"`
	ReplayTape   string  `json:"replay_tape" yaml:"replay_tape" env:"REPLAY_TAPE" validate:"omitempty,uuid"`
}

// UsesTape reports whether a tape store is needed
func (c EntropyConfig) UsesTape() bool {
	return c.Record || c.Source == SourceReplay
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" env:"FORMAT" validate:"oneof=text json"` // json or text
}

// MonitorConfig configures run monitoring
type MonitorConfig struct {
	SlowGeneration SlowGenerationConfig `json:"slow_generation" yaml:"slow_generation" envPrefix:"SLOW_GENERATION_"`
}

// SlowGenerationConfig configures the slow generation log. A zero
// threshold disables it. Threshold is a duration string ("1s") in YAML,
// JSON and env; JSON also takes integer nanoseconds.
type SlowGenerationConfig struct {
	Threshold  time.Duration `json:"threshold" yaml:"threshold" env:"THRESHOLD" validate:"gte=0"`
	MaxEntries int           `json:"max_entries" yaml:"max_entries" env:"MAX_ENTRIES" validate:"gte=0"`
}

// UnmarshalJSON accepts threshold either as a duration string ("250ms")
// or as integer nanoseconds
func (c *SlowGenerationConfig) UnmarshalJSON(data []byte) error {
	type plain SlowGenerationConfig
	aux := struct {
		*plain
		Threshold json.RawMessage `json:"threshold"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Threshold) == 0 || string(aux.Threshold) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.Threshold, &text); err == nil {
		d, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("slow_generation.threshold: %w", err)
		}
		c.Threshold = d
		return nil
	}

	var nanos int64
	if err := json.Unmarshal(aux.Threshold, &nanos); err != nil {
		return fmt.Errorf("slow_generation.threshold: want a duration string or nanoseconds: %w", err)
	}
	c.Threshold = time.Duration(nanos)
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		GA: *genetic.DefaultConfig(),
		Entropy: EntropyConfig{
			Source:   SourcePCG,
			PoolSize: 1000,
			Burst:    1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Monitor: MonitorConfig{
			SlowGeneration: SlowGenerationConfig{
				Threshold:  time.Second,
				MaxEntries: 1000,
			},
		},
	}
}

// LoadConfig reads path (JSON, or YAML for .yaml/.yml), applies environment
// overrides and validates the result. An empty path starts from defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = json.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := ParseEnv(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault tries QEVO_CONFIG and then the usual locations,
// falling back to defaults
func LoadConfigOrDefault() *Config {
	possiblePaths := []string{
		"qevo.json",
		"qevo.yaml",
		"./config/qevo.json",
		"./config/qevo.yaml",
	}

	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	if config, err := LoadConfig(""); err == nil {
		return config
	}
	return DefaultConfig()
}

// ParseEnv applies QEVO_* environment overrides to target
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

var configValidate = validator.New()

// Validate checks the whole configuration
func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateConfig(config *Config) error {
	if err := config.GA.Validate(); err != nil {
		return fmt.Errorf("%w: ga: %w", ErrInvalid, err)
	}

	for name, section := range map[string]any{
		"entropy": &config.Entropy,
		"log":     &config.Log,
		"monitor": &config.Monitor,
	} {
		if err := configValidate.Struct(section); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrInvalid, name, describe(err))
		}
	}

	if config.Entropy.Source == SourceReplay && config.Entropy.ReplayTape == "" {
		return fmt.Errorf("%w: entropy: replay_tape is required for the replay source", ErrInvalid)
	}
	if config.Entropy.UsesTape() && config.Entropy.TapeDir == "" && !config.Entropy.TapeInMemory {
		return fmt.Errorf("%w: entropy: tape_dir or tape_in_memory is required for recording or replay", ErrInvalid)
	}
	if config.Entropy.RateLimit > 0 && config.Entropy.Burst < 1 {
		return fmt.Errorf("%w: entropy: burst must be at least 1 when rate_limit is set", ErrInvalid)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
