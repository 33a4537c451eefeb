// Package settings holds the user-mutable report settings and persists them
// as YAML.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// Default values for settings.
const (
	DefaultRefreshIntervalMinutes     = 5
	DefaultHeatStressThresholdCelsius = 40.0
	DefaultMinimumAlertSeverity       = "HIGH"
	DefaultTemperatureUnit            = Celsius
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid settings")

// TemperatureUnit selects how temperatures are displayed.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "celsius"
	Fahrenheit TemperatureUnit = "fahrenheit"
)

// Convert turns a Celsius value into this unit.
func (u TemperatureUnit) Convert(celsius float64) float64 {
	if u == Fahrenheit {
		return celsius*9/5 + 32
	}
	return celsius
}

// Symbol returns the display suffix.
func (u TemperatureUnit) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// Settings are read by the engine and never mutated by it.
type Settings struct {
	RefreshIntervalMinutes     int             `yaml:"refresh_interval_minutes" json:"refresh_interval_minutes"`
	HeatStressThresholdCelsius float64         `yaml:"heat_stress_threshold_celsius" json:"heat_stress_threshold_celsius"`
	MinimumAlertSeverity       string          `yaml:"minimum_alert_severity" json:"minimum_alert_severity"`
	TemperatureUnit            TemperatureUnit `yaml:"temperature_unit" json:"temperature_unit"`
}

// Default returns settings with defaults applied.
func Default() Settings {
	return Settings{
		RefreshIntervalMinutes:     DefaultRefreshIntervalMinutes,
		HeatStressThresholdCelsius: DefaultHeatStressThresholdCelsius,
		MinimumAlertSeverity:       DefaultMinimumAlertSeverity,
		TemperatureUnit:            DefaultTemperatureUnit,
	}
}

// RefreshInterval returns the poll interval as a duration.
func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalMinutes) * time.Minute
}

// AlertSeverity returns the configured minimum alert level.
func (s Settings) AlertSeverity() models.Severity {
	return models.ParseSeverity(s.MinimumAlertSeverity)
}

// Validate checks s and canonicalises its enum values.
func Validate(s *Settings) error {
	if s.RefreshIntervalMinutes < 1 {
		return fmt.Errorf("%w: refresh_interval_minutes must be >= 1", ErrInvalid)
	}
	if s.HeatStressThresholdCelsius < -50 || s.HeatStressThresholdCelsius > 80 {
		return fmt.Errorf("%w: heat_stress_threshold_celsius %.1f out of range", ErrInvalid, s.HeatStressThresholdCelsius)
	}

	switch sev := models.ParseSeverity(s.MinimumAlertSeverity); sev {
	case models.SeverityHigh, models.SeverityVeryHigh:
		s.MinimumAlertSeverity = sev.String()
	default:
		return fmt.Errorf("%w: minimum_alert_severity %q (must be HIGH or VERY HIGH)", ErrInvalid, s.MinimumAlertSeverity)
	}

	switch unit := TemperatureUnit(strings.ToLower(strings.TrimSpace(string(s.TemperatureUnit)))); unit {
	case Celsius, Fahrenheit:
		s.TemperatureUnit = unit
	default:
		return fmt.Errorf("%w: temperature_unit %q (must be celsius or fahrenheit)", ErrInvalid, s.TemperatureUnit)
	}

	return nil
}

// Store owns the current settings. A store with an empty path lives only in
// memory.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Settings
}

// Open loads settings from path. A missing file yields defaults.
func Open(ctx context.Context, path string) (*Store, error) {
	st := &Store{path: path, current: Default()}
	if path == "" {
		return st, nil
	}

	cfg, err := Load(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	st.current = cfg
	return st, nil
}

// Load reads and validates a settings file.
func Load(_ context.Context, path string) (Settings, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-provided settings path
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parsing settings file: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Settings{}, fmt.Errorf("validating settings file: %w", err)
	}
	return cfg, nil
}

// Path returns the backing file, empty for in-memory stores.
func (st *Store) Path() string {
	return st.path
}

// Current returns a copy of the active settings.
func (st *Store) Current() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Update validates next, persists it and makes it current. Nothing changes
// when validation or the write fails.
func (st *Store) Update(_ context.Context, next Settings) (Settings, error) {
	if err := Validate(&next); err != nil {
		return Settings{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.path != "" {
		if err := write(st.path, next); err != nil {
			return Settings{}, err
		}
	}
	st.current = next
	return next, nil
}

func write(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}
