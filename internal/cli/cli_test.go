package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/i474232898/weather-tracker/internal/config"
	"github.com/i474232898/weather-tracker/internal/store"
	"github.com/i474232898/weather-tracker/internal/weather"
)

type stubGateway struct {
	places []weather.PlaceResult
}

func (g *stubGateway) FetchPlaces(context.Context, string, int, string) ([]weather.PlaceResult, error) {
	return g.places, nil
}

func (g *stubGateway) FetchForecast(_ context.Context, lat, lon float64) (weather.ForecastPayload, error) {
	return weather.ForecastPayload{
		Latitude:  lat,
		Longitude: lon,
		Current:   weather.CurrentWeather{Temperature: 18, WindSpeed: 12, WindDirection: 90, WeatherCode: 61, IsDay: 1, Time: "2025-08-11T10:00"},
		Daily: weather.DailySeries{
			Time:          []string{"2025-08-11", "2025-08-12"},
			TempMax:       []float64{22, 23},
			TempMin:       []float64{12, 13},
			Precipitation: []float64{4.5, 0},
		},
	}, nil
}

// run executes the root command against one shared in-memory store.
func run(t *testing.T, kv store.KV, gw weather.Gateway, args ...string) (string, error) {
	t.Helper()

	a := &app{open: func(cfg *config.AppConfig) (*runtime, error) {
		settings := store.NewSettingsStore(kv)
		policy := settings.Get().Policy()
		policy.RetryDelay = 0
		return &runtime{
			cfg:       cfg,
			locations: store.NewLocationStore(kv),
			settings:  settings,
			service:   weather.NewService(gw, policy),
		}, nil
	}}

	cmd := newRoot(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAddListRemove(t *testing.T) {
	kv := store.NewMemoryKV()
	gw := &stubGateway{}

	out, err := run(t, kv, gw, "add", "Lisbon", "--id", "lis", "--lat", "38.72", "--lon=-9.14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "added Lisbon (lis)") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = run(t, kv, gw, "add", "lisbon")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "already tracked") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = run(t, kv, gw, "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"lis", "Lisbon", "38.7200", "-9.1400"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, kv, gw, "rm", "LISBON"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err = run(t, kv, gw, "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "no tracked locations") {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := run(t, kv, gw, "remove", "Lisbon"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShowRendersDailyTable(t *testing.T) {
	kv := store.NewMemoryKV()
	gw := &stubGateway{}

	if _, err := run(t, kv, gw, "add", "Porto", "--lat", "41.15", "--lon=-8.61"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := run(t, kv, gw, "show", "porto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Porto", "weather.rainy", "2025-08-11", "22.0", "12.0", "4.5", "E"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, kv, gw, "show", "nowhere"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	kv := store.NewMemoryKV()
	gw := &stubGateway{places: []weather.PlaceResult{
		{Name: "Springfield", Admin1: "Illinois", Country: "United States", Latitude: 39.8, Longitude: -89.64},
	}}

	out, err := run(t, kv, gw, "search", "spring", "field")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Springfield") || !strings.Contains(out, "Illinois") {
		t.Fatalf("unexpected output: %q", out)
	}

	gw.places = nil
	out, err = run(t, kv, gw, "search", "zzz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "no places found") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSettings(t *testing.T) {
	kv := store.NewMemoryKV()
	gw := &stubGateway{}

	out, err := run(t, kv, gw, "settings", "--refetch-interval-ms", "0", "--retry", "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "refetchIntervalMs") {
		t.Fatalf("unexpected output: %q", out)
	}
	got := store.NewSettingsStore(kv).Get()
	if got.RefetchIntervalMs != 0 || got.Retry != 2 {
		t.Fatalf("settings not persisted: %+v", got)
	}

	if _, err := run(t, kv, gw, "settings", "--retry", "11"); !errors.Is(err, store.ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}

	if _, err := run(t, kv, gw, "settings", "--reset", "--retry", "1"); err == nil {
		t.Fatal("expected error combining --reset with a change")
	}

	if _, err := run(t, kv, gw, "settings", "--reset"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.NewSettingsStore(kv).Get(); got != store.DefaultSettings() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}
