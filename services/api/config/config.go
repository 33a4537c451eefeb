package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultCacheDir     = ".shizuku"
	defaultSettingsPath = ".shizuku/settings.yaml"
	defaultExportDir    = "exports"
	defaultTopN         = 10
)

// ErrNoSource is returned by SourceMode callers when neither HTTP feeds nor a
// database are configured.
var ErrNoSource = errors.New("ENTITIES_URL and READINGS_URL, or DATABASE_URL, is required")

// SourceMode tells where entities and readings come from.
type SourceMode string

const (
	SourceNone     SourceMode = ""
	SourceHTTP     SourceMode = "http"
	SourcePostgres SourceMode = "postgres"
)

// Config holds environment-driven settings for the report service.
type Config struct {
	Port        int
	BearerToken string

	Kind          models.EntityKind
	EntitiesURL   string
	ReadingsURL   string
	SourceToken   string
	DatabaseURL   string
	ReadingWindow time.Duration
	FetchTimeout  time.Duration

	// RefreshInterval overrides the settings store when non-zero.
	RefreshInterval time.Duration

	SettingsPath string
	CacheDir     string
	ExportDir    string
	WebhookURL   string
	WebhookToken string

	IndexField       string
	TemperatureField string
	HumidityField    string
	HeatField        string
	MetricFields     []string
	TopN             int

	Timezone string
	Location *time.Location
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:             8080,
		Kind:             models.KindSensor,
		FetchTimeout:     defaultFetchTimeout,
		SettingsPath:     defaultSettingsPath,
		CacheDir:         defaultCacheDir,
		ExportDir:        defaultExportDir,
		IndexField:       "density",
		TemperatureField: "temperature",
		HumidityField:    "humidity",
		HeatField:        "heat_index",
		TopN:             defaultTopN,
		Timezone:         "UTC",
		Location:         time.UTC,
	}

	if portStr := env("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := env("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	cfg.BearerToken = env("API_BEARER_TOKEN")

	if v := env("ENTITY_KIND"); v != "" {
		kind, ok := models.ParseEntityKind(v)
		if !ok {
			return cfg, fmt.Errorf("invalid ENTITY_KIND: %s", v)
		}
		cfg.Kind = kind
	}

	cfg.EntitiesURL = env("ENTITIES_URL")
	cfg.ReadingsURL = env("READINGS_URL")
	cfg.SourceToken = env("SOURCE_BEARER_TOKEN")
	cfg.DatabaseURL = env("DATABASE_URL")

	if v := env("READING_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid READING_WINDOW: %w", err)
		}
		cfg.ReadingWindow = d
	}

	if v := env("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid FETCH_TIMEOUT: %s", v)
		}
		cfg.FetchTimeout = d
	}

	if v := env("REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Second {
			return cfg, fmt.Errorf("invalid REFRESH_INTERVAL: %s", v)
		}
		cfg.RefreshInterval = d
	}

	if v := env("SETTINGS_PATH"); v != "" {
		cfg.SettingsPath = v
	}
	if v := env("CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := env("EXPORT_DIR"); v != "" {
		cfg.ExportDir = v
	}
	cfg.WebhookURL = env("EXPORT_WEBHOOK_URL")
	cfg.WebhookToken = env("EXPORT_WEBHOOK_TOKEN")

	if v := env("INDEX_FIELD"); v != "" {
		cfg.IndexField = v
	}
	if v := env("TEMPERATURE_FIELD"); v != "" {
		cfg.TemperatureField = v
	}
	if v := env("HUMIDITY_FIELD"); v != "" {
		cfg.HumidityField = v
	}
	if v := env("HEAT_FIELD"); v != "" {
		cfg.HeatField = v
	}
	if v := env("METRIC_FIELDS"); v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.MetricFields = append(cfg.MetricFields, f)
			}
		}
	}

	if v := env("TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TopN = n
		} else {
			return cfg, fmt.Errorf("invalid TOP_N: %s", v)
		}
	}

	if v := env("TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid TIMEZONE: %w", err)
		}
		cfg.Timezone = v
		cfg.Location = loc
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SourceMode reports which source the poller should read. HTTP feeds win
// when both are set; the database then mirrors committed cycles.
func (c Config) SourceMode() SourceMode {
	switch {
	case c.EntitiesURL != "" && c.ReadingsURL != "":
		return SourceHTTP
	case c.DatabaseURL != "":
		return SourcePostgres
	default:
		return SourceNone
	}
}

// Mirror reports whether committed HTTP cycles are copied into Postgres.
func (c Config) Mirror() bool {
	return c.SourceMode() == SourceHTTP && c.DatabaseURL != ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
