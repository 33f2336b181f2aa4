package providers

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-tracker/internal/weather"
)

var errEmptyName = errors.New("empty location name")

// geocoder keeps its API key in a package variable.
var googleMu sync.Mutex

// GoogleResolver resolves a city name to coordinates with the Google Geocoding API.
type GoogleResolver struct {
	apiKey string
}

var _ weather.CoordinateResolver = (*GoogleResolver)(nil)

func NewGoogleResolver(apiKey string) *GoogleResolver {
	return &GoogleResolver{apiKey: apiKey}
}

func (r *GoogleResolver) Resolve(ctx context.Context, name string) (float64, float64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, 0, errEmptyName
	}

	type result struct {
		loc geocoder.Location
		err error
	}
	ch := make(chan result, 1)

	go func() {
		googleMu.Lock()
		defer googleMu.Unlock()
		geocoder.ApiKey = r.apiKey
		loc, err := geocoder.Geocoding(geocoder.Address{City: name})
		ch <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return 0, 0, res.err
		}
		return res.loc.Latitude, res.loc.Longitude, nil
	}
}
