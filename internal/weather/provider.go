package weather

import (
	"context"
)

// Gateway fetches and validates upstream payloads. Implementations do not retry.
type Gateway interface {
	FetchPlaces(ctx context.Context, query string, limit int, language string) ([]PlaceResult, error)
	FetchForecast(ctx context.Context, lat, lon float64) (ForecastPayload, error)
}

// CoordinateResolver is a secondary lookup used when place search finds nothing.
type CoordinateResolver interface {
	Resolve(ctx context.Context, name string) (lat, lon float64, err error)
}
