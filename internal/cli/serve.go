package cli

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-tracker/internal/api/http"
	"github.com/i474232898/weather-tracker/internal/scheduler"
)

const appName = "weather-tracker"

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if port != "" {
				rt.cfg.Port = port
			}
			return serve(cmd.Context(), rt)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	policy := rt.service.Policy()

	sched := scheduler.New(rt.service, policy.RefetchInterval, rt.cfg.SweepInterval)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	app := httpapi.NewApp(appName)

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   appName,
			"locations": len(rt.locations.List()),
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:         rt.service,
		Locations:       rt.locations,
		Settings:        rt.settings,
		Rescheduler:     sched,
		Language:        rt.cfg.Language,
		SuggestionLimit: rt.cfg.SuggestionLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("INFO: listening on :%s", rt.cfg.Port)
		errCh <- app.Listen(":" + rt.cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}
