// Package runconfig loads the run configuration: input series, output
// destinations, and the track type policies to execute. Sources are
// layered defaults < YAML file < environment, with the environment
// winning.
package runconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/halcyon-data/stormtrack/internal/policy"
)

// EnvPrefix prefixes every recognised environment variable. Nesting
// uses a double underscore so key names keep their single underscores:
// STORMTRACK_OUTPUT__DIR -> output.dir.
const EnvPrefix = "STORMTRACK_"

// ErrNoTrackTypes reports a configuration without a single track type.
var ErrNoTrackTypes = errors.New("no track types configured")

// InputConfig locates the field grid series.
type InputConfig struct {
	// Path is the grid series file (CSV, one row per cell sample).
	Path string `json:"path"`
	// TimeStepPeriod is the nominal model step period of the series.
	TimeStepPeriod time.Duration `json:"time_step_period"`
	// Global marks the longitude axis as periodic.
	Global bool `json:"global"`
}

// OutputConfig selects run output destinations. Empty values disable
// the corresponding sink.
type OutputConfig struct {
	// Dir receives per-track-type text track files.
	Dir string `json:"dir"`
	// Database is the SQLite file for run persistence.
	Database string `json:"database"`
}

// Config is the complete run configuration.
type Config struct {
	Workers    int                      `json:"workers"`
	Input      InputConfig              `json:"input"`
	Output     OutputConfig             `json:"output"`
	TrackTypes []policy.TrackTypePolicy `json:"track_types"`
}

func defaults() Config {
	return Config{
		Workers: 0, // 0 = GOMAXPROCS
		Input: InputConfig{
			TimeStepPeriod: 6 * time.Hour,
			Global:         true,
		},
	}
}

// Load reads the configuration file at path, overlays environment
// variables, and validates the result. An empty path loads defaults
// and environment only.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal configuration: %w", err)
	}

	// Track types inherit the input step period unless they pin their
	// own, so gaps are counted in model steps by default.
	for i := range cfg.TrackTypes {
		if cfg.TrackTypes[i].Stitch.TimeStepPeriod == 0 {
			cfg.TrackTypes[i].Stitch.TimeStepPeriod = cfg.Input.TimeStepPeriod
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the whole configuration, policies included.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.Input.Path == "" {
		return errors.New("input path not configured")
	}
	if c.Input.TimeStepPeriod <= 0 {
		return errors.New("input time step period must be positive")
	}
	if len(c.TrackTypes) == 0 {
		return ErrNoTrackTypes
	}
	return policy.ValidateAll(c.TrackTypes)
}
