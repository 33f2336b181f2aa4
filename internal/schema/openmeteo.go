package schema

import (
	"fmt"

	"github.com/i474232898/weather-tracker/internal/weather"
)

// ContractID names a contract.
type ContractID string

const (
	PlaceSearchID ContractID = "place-search"
	ForecastID    ContractID = "forecast"
)

func str(name string) Field     { return Field{Name: name, Kind: String} }
func num(name string) Field     { return Field{Name: name, Kind: Number} }
func integer(name string) Field { return Field{Name: name, Kind: Integer} }

func optional(f Field) Field {
	f.Optional = true
	return f
}

func object(name string, fields ...Field) Field {
	return Field{Name: name, Kind: Object, Fields: fields}
}

func array(name string, elem Field) Field {
	return Field{Name: name, Kind: Array, Elem: &elem}
}

var placeResult = object("",
	optional(integer("id")),
	str("name"),
	optional(str("country")),
	optional(str("country_code")),
	optional(str("admin1")),
	num("latitude"),
	num("longitude"),
	optional(integer("population")),
	optional(str("timezone")),
)

// PlaceSearch accepts the geocoding search envelope. A missing results array decodes as empty.
var PlaceSearch = Contract[weather.PlaceSearchResponse]{
	ID: PlaceSearchID,
	Root: object("",
		optional(array("results", placeResult)),
		optional(num("generationtime_ms")),
	),
	finish: func(out *weather.PlaceSearchResponse, extra map[string]any) {
		if out.Results == nil {
			out.Results = []weather.PlaceResult{}
		}
		out.Extra = extra
	},
}

// Forecast accepts a forecast payload requested with current_weather, daily and hourly series.
var Forecast = Contract[weather.ForecastPayload]{
	ID: ForecastID,
	Root: object("",
		num("latitude"),
		num("longitude"),
		optional(str("timezone")),
		optional(integer("utc_offset_seconds")),
		object("current_weather",
			num("temperature"),
			num("windspeed"),
			num("winddirection"),
			integer("weathercode"),
			integer("is_day"),
			str("time"),
		),
		optional(object("daily_units",
			str("time"),
			str("temperature_2m_max"),
			str("temperature_2m_min"),
			optional(str("precipitation_sum")),
		)),
		object("daily",
			array("time", str("")),
			array("temperature_2m_max", num("")),
			array("temperature_2m_min", num("")),
			optional(array("precipitation_sum", num(""))),
		),
		optional(object("hourly",
			array("time", str("")),
			array("relative_humidity_2m", num("")),
		)),
	),
	finish: func(out *weather.ForecastPayload, extra map[string]any) {
		out.Extra = extra
	},
}

// Validate runs the contract named by id and returns its typed value.
func Validate(raw []byte, id ContractID) (any, error) {
	switch id {
	case PlaceSearchID:
		return PlaceSearch.Validate(raw)
	case ForecastID:
		return Forecast.Validate(raw)
	default:
		return nil, fmt.Errorf("unknown contract %q", id)
	}
}
