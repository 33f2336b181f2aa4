package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	// DBPath is the sqlite file holding tracked locations and settings.
	DBPath string `yaml:"db_path"`
	Port   string `yaml:"port"`

	// Language is the default display language for place names.
	Language string `yaml:"language"`

	// Outbound gateway.
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	GeocodeURL     string        `yaml:"geocode_url"`
	ForecastURL    string        `yaml:"forecast_url"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`

	SuggestionLimit int `yaml:"suggestion_limit"`

	// SweepInterval is how often inactive cache entries are evicted.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Optional Google geocoding fallback; disabled when empty.
	GoogleGeocoderAPIKey string `yaml:"google_geocoder_api_key"`
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		DBPath:          "data/weather-tracker.db",
		Port:            "8080",
		Language:        "en",
		HTTPTimeout:     15 * time.Second,
		GeocodeURL:      "https://geocoding-api.open-meteo.com/v1/search",
		ForecastURL:     "https://api.open-meteo.com/v1/forecast",
		RateLimitRPS:    5,
		RateLimitBurst:  5,
		SuggestionLimit: 10,
		SweepInterval:   time.Minute,
	}
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then .env and the environment.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("INFO: error loading .env file: %v", err)
	}

	cfg.DBPath = getenvDefault("WEATHER_DB_PATH", cfg.DBPath)
	cfg.Port = getenvDefault("PORT", cfg.Port)
	cfg.Language = getenvDefault("WEATHER_LANGUAGE", cfg.Language)
	cfg.GeocodeURL = getenvDefault("WEATHER_GEOCODE_URL", cfg.GeocodeURL)
	cfg.ForecastURL = getenvDefault("WEATHER_FORECAST_URL", cfg.ForecastURL)
	cfg.GoogleGeocoderAPIKey = getenvDefault("GOOGLE_GEOCODER_API_KEY", cfg.GoogleGeocoderAPIKey)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("WEATHER_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getenvDuration("WEATHER_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getenvFloat("WEATHER_RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getenvInt("WEATHER_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return nil, err
	}
	if cfg.SuggestionLimit, err = getenvInt("WEATHER_SUGGESTION_LIMIT", cfg.SuggestionLimit); err != nil {
		return nil, err
	}

	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("invalid WEATHER_HTTP_TIMEOUT: must be positive")
	}
	if cfg.SuggestionLimit <= 0 {
		return nil, fmt.Errorf("invalid WEATHER_SUGGESTION_LIMIT: must be positive")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
