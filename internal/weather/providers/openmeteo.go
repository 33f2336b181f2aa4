package providers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-tracker/internal/schema"
	"github.com/i474232898/weather-tracker/internal/weather"
)

const (
	DefaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	defaultPlaceLimit = 10
	defaultLanguage   = "en"
)

// OpenMeteoConfig configures the Open-Meteo gateway. Zero values take defaults.
type OpenMeteoConfig struct {
	GeocodeURL     string
	ForecastURL    string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// OpenMeteoGateway implements weather.Gateway for the Open-Meteo geocoding and forecast APIs.
type OpenMeteoGateway struct {
	name        string
	geocodeURL  string
	forecastURL string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
}

var _ weather.Gateway = (*OpenMeteoGateway)(nil)

func NewOpenMeteoGateway(cfg OpenMeteoConfig) *OpenMeteoGateway {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = DefaultGeocodeURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
	})

	return &OpenMeteoGateway{
		name:        "openmeteo",
		geocodeURL:  cfg.GeocodeURL,
		forecastURL: cfg.ForecastURL,
		httpCfg: HTTPClientConfig{
			Client: resty.New().
				SetTimeout(cfg.Timeout).
				SetHeader("Accept", "application/json"),
			Limiter: limiter,
		},
		circuit: cb,
	}
}

func (g *OpenMeteoGateway) Name() string {
	return g.name
}

// FetchPlaces searches places by free text. A blank query returns no results without a request.
func (g *OpenMeteoGateway) FetchPlaces(ctx context.Context, query string, limit int, language string) ([]weather.PlaceResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []weather.PlaceResult{}, nil
	}
	if limit <= 0 {
		limit = defaultPlaceLimit
	}
	if language == "" {
		language = defaultLanguage
	}

	body, err := doGet(ctx, g.httpCfg, g.circuit, g.geocodeURL, map[string]string{
		"name":     query,
		"count":    strconv.Itoa(limit),
		"language": language,
		"format":   "json",
	})
	if err != nil {
		return nil, err
	}

	resp, err := schema.PlaceSearch.Validate(body)
	if err != nil {
		return nil, schemaFailure(err)
	}
	return resp.Results, nil
}

// FetchForecast fetches current conditions, daily series and hourly humidity for a coordinate.
func (g *OpenMeteoGateway) FetchForecast(ctx context.Context, lat, lon float64) (weather.ForecastPayload, error) {
	body, err := doGet(ctx, g.httpCfg, g.circuit, g.forecastURL, forecastParams(lat, lon))
	if err != nil {
		return weather.ForecastPayload{}, err
	}

	payload, err := schema.Forecast.Validate(body)
	if err != nil {
		return weather.ForecastPayload{}, schemaFailure(err)
	}
	return payload, nil
}

func forecastParams(lat, lon float64) map[string]string {
	return map[string]string{
		"latitude":        strconv.FormatFloat(lat, 'f', -1, 64),
		"longitude":       strconv.FormatFloat(lon, 'f', -1, 64),
		"current_weather": "true",
		"daily":           "temperature_2m_max,temperature_2m_min,precipitation_sum",
		"hourly":          "relative_humidity_2m",
		"timezone":        "auto",
	}
}

func schemaFailure(err error) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return &weather.FetchError{
			Kind:   weather.FetchSchemaViolation,
			Path:   verr.Path,
			Reason: verr.Reason,
			Err:    verr,
		}
	}
	return &weather.FetchError{Kind: weather.FetchSchemaViolation, Path: "(root)", Reason: err.Error(), Err: err}
}
