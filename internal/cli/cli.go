package cli

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-tracker/internal/config"
	"github.com/i474232898/weather-tracker/internal/store"
	"github.com/i474232898/weather-tracker/internal/weather"
	"github.com/i474232898/weather-tracker/internal/weather/providers"
)

// runtime is everything a command needs, built from the loaded config.
type runtime struct {
	cfg       *config.AppConfig
	locations *store.LocationStore
	settings  *store.SettingsStore
	service   *weather.Service
	closers   []func() error
}

func (r *runtime) Close() {
	r.service.Close()
	for _, c := range r.closers {
		if err := c(); err != nil {
			log.Printf("ERROR: closing: %v", err)
		}
	}
}

type app struct {
	configPath string
	open       func(cfg *config.AppConfig) (*runtime, error)
}

func New() *cobra.Command {
	return newRoot(&app{open: openRuntime})
}

func newRoot(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "weather-tracker",
		Short:        "Track the weather for a list of saved locations",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(a),
		newListCmd(a),
		newAddCmd(a),
		newRemoveCmd(a),
		newShowCmd(a),
		newSearchCmd(a),
		newSettingsCmd(a),
	)
	return cmd
}

func (a *app) runtime() (*runtime, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	return a.open(cfg)
}

func openRuntime(cfg *config.AppConfig) (*runtime, error) {
	kv, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	settings := store.NewSettingsStore(kv)

	gw := providers.NewOpenMeteoGateway(providers.OpenMeteoConfig{
		GeocodeURL:     cfg.GeocodeURL,
		ForecastURL:    cfg.ForecastURL,
		Timeout:        cfg.HTTPTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	var opts []weather.Option
	if cfg.GoogleGeocoderAPIKey != "" {
		log.Printf("INFO: google geocoding fallback enabled")
		opts = append(opts, weather.WithFallbackResolver(providers.NewGoogleResolver(cfg.GoogleGeocoderAPIKey)))
	}

	return &runtime{
		cfg:       cfg,
		locations: store.NewLocationStore(kv),
		settings:  settings,
		service:   weather.NewService(gw, settings.Get().Policy(), opts...),
		closers:   []func() error{kv.Close},
	}, nil
}
