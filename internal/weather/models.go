package weather

import (
	"strings"
	"time"

	"github.com/i474232898/weather-tracker/internal/common"
)

// PlaceResult is a single place returned by the upstream place search.
type PlaceResult struct {
	ID          *int64  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Admin1      string  `json:"admin1,omitempty"`
	Latitude    float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Population  *int64  `json:"population,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
}

// PlaceSearchResponse is the envelope around place search results.
// Fields the contract does not name are kept in Extra.
type PlaceSearchResponse struct {
	Results          []PlaceResult `json:"results" validate:"dive"`
	GenerationTimeMs *float64      `json:"generationtime_ms,omitempty"`

	Extra map[string]any `json:"-"`
}

// CurrentWeather is the current-conditions block of a forecast payload.
type CurrentWeather struct {
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection float64 `json:"winddirection"`
	WeatherCode   int     `json:"weathercode"`
	IsDay         int     `json:"is_day" validate:"oneof=0 1"`
	Time          string  `json:"time"`
}

// DailySeries holds parallel per-day arrays. All arrays share the length of Time.
type DailySeries struct {
	Time          []string  `json:"time"`
	TempMax       []float64 `json:"temperature_2m_max" validate:"samelen=Time"`
	TempMin       []float64 `json:"temperature_2m_min" validate:"samelen=Time"`
	Precipitation []float64 `json:"precipitation_sum,omitempty" validate:"omitempty,samelen=Time"`
}

// HourlySeries holds the hourly humidity samples.
type HourlySeries struct {
	Time             []string  `json:"time"`
	RelativeHumidity []float64 `json:"relative_humidity_2m"`
}

// ForecastPayload is a validated forecast response.
type ForecastPayload struct {
	Latitude         float64        `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64        `json:"longitude" validate:"gte=-180,lte=180"`
	Timezone         string         `json:"timezone,omitempty"`
	UTCOffsetSeconds *int           `json:"utc_offset_seconds,omitempty"`
	Current          CurrentWeather `json:"current_weather"`
	DailyUnits       map[string]any `json:"daily_units,omitempty"`
	Daily            DailySeries    `json:"daily"`
	Hourly           *HourlySeries  `json:"hourly,omitempty"`

	// Extra carries upstream fields outside the contract, e.g. current_weather_units.
	Extra map[string]any `json:"-"`
}

// TrackedLocation is a place the user chose to follow.
type TrackedLocation struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether both coordinates are present and finite.
func (l TrackedLocation) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil &&
		common.IsFinite(*l.Latitude) && common.IsFinite(*l.Longitude)
}

// Clone returns a deep copy so callers never share coordinate pointers.
func (l TrackedLocation) Clone() TrackedLocation {
	out := l
	if l.Latitude != nil {
		v := *l.Latitude
		out.Latitude = &v
	}
	if l.Longitude != nil {
		v := *l.Longitude
		out.Longitude = &v
	}
	return out
}

func (l TrackedLocation) sameTarget(o TrackedLocation) bool {
	return strings.EqualFold(l.Name, o.Name) &&
		sameCoord(l.Latitude, o.Latitude) &&
		sameCoord(l.Longitude, o.Longitude)
}

func sameCoord(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DailyRow is one day of the forecast table. Nil means no usable value.
type DailyRow struct {
	Date          string   `json:"date"`
	Min           *float64 `json:"min"`
	Max           *float64 `json:"max"`
	Precipitation *float64 `json:"precipitation"`
	HumidityAvg   *float64 `json:"humidityAvg"`
}

// Units are the unit labels reported by the upstream provider.
type Units struct {
	Current map[string]string `json:"current"`
	Daily   map[string]string `json:"daily"`
}

// Meta describes where and in which time zone a forecast applies.
type Meta struct {
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Timezone         string   `json:"timezone,omitempty"`
	UTCOffsetSeconds *int     `json:"utcOffsetSeconds"`
}

// CardViewModel is the normalized view of one forecast.
type CardViewModel struct {
	Temperature          float64    `json:"temperature"`
	DescriptionKey       string     `json:"descriptionKey"`
	Icon                 string     `json:"icon"`
	Kind                 Kind       `json:"kind,omitempty"`
	Severity             Severity   `json:"severity,omitempty"`
	Humidity             *float64   `json:"humidity"`
	WindSpeed            float64    `json:"windSpeed"`
	WindDirectionDeg     *float64   `json:"windDirectionDeg"`
	WindDirectionCompass string     `json:"windDirectionCompass"`
	IsDay                bool       `json:"isDay"`
	Code                 *int       `json:"code"`
	DailyRows            []DailyRow `json:"dailyRows"`
	Units                Units      `json:"units"`
	Meta                 Meta       `json:"meta"`
}

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Key identifies one independently refreshed data stream.
type Key struct {
	LocationID string `json:"locationId"`
	Language   string `json:"language"`
}

// String returns a canonical string form for logs.
func (k Key) String() string {
	return k.LocationID + ":" + k.Language
}

// State is a read-only snapshot of a cache entry.
type State struct {
	Key       Key
	Status    Status
	Data      *CardViewModel
	Place     *PlaceResult
	Err       error
	ErrorKind ErrorKind
	FetchedAt time.Time
	Fetching  bool
}
