package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-tracker/internal/weather"
)

const heartbeatInterval = 15 * time.Second

// streamWeather pushes every state change of one key as a server-sent event.
// The subscription keeps the key active until the client disconnects.
func (h *handlers) streamWeather(c *fiber.Ctx) error {
	loc, err := h.location(c)
	if err != nil {
		return err
	}
	lang := h.language(c)
	svc := h.deps.Service

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// holds only the newest undelivered state
		updates := make(chan weather.State, 1)
		unsubscribe := svc.Subscribe(loc, lang, func(st weather.State) {
			select {
			case updates <- st:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- st:
			default:
			}
		})
		defer unsubscribe()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case st := <-updates:
				raw, err := json.Marshal(newWeatherView(loc, st))
				if err != nil {
					return
				}
				fmt.Fprintf(w, "event: state\ndata: %s\n\n", raw)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				// client went away
				return
			}
		}
	}))
	return nil
}
