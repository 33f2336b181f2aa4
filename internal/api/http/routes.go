package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-tracker/internal/store"
	"github.com/i474232898/weather-tracker/internal/weather"
)

var validate = validator.New()

// waitTimeout bounds requests that block on an upstream load.
const waitTimeout = 30 * time.Second

// Rescheduler applies a new background refresh interval.
type Rescheduler interface {
	Reschedule(interval time.Duration) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Service     *weather.Service
	Locations   *store.LocationStore
	Settings    *store.SettingsStore
	Rescheduler Rescheduler

	// Language is used when a request does not pass ?lang=.
	Language        string
	SuggestionLimit int
}

// NewApp returns a Fiber app with the centralized JSON error handler.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Language == "" {
		deps.Language = "en"
	}
	if deps.SuggestionLimit <= 0 {
		deps.SuggestionLimit = 10
	}
	h := &handlers{deps: deps}

	v1 := app.Group("/api/v1")

	v1.Get("/locations", h.listLocations)
	v1.Post("/locations", h.addLocation)
	v1.Put("/locations/:id", h.updateLocation)
	v1.Delete("/locations/:key", h.removeLocation)

	v1.Get("/weather", h.listWeather)
	v1.Get("/weather/:id", h.getWeather)
	v1.Post("/weather/:id/refresh", h.refreshWeather)
	v1.Get("/weather/:id/stream", h.streamWeather)

	v1.Get("/places", h.searchPlaces)

	v1.Get("/settings", h.getSettings)
	v1.Patch("/settings", h.updateSettings)
	v1.Delete("/settings", h.resetSettings)

	v1.Post("/signals/focus", func(c *fiber.Ctx) error {
		deps.Service.OnFocus()
		return c.SendStatus(fiber.StatusAccepted)
	})
	v1.Post("/signals/reconnect", func(c *fiber.Ctx) error {
		deps.Service.OnReconnect()
		return c.SendStatus(fiber.StatusAccepted)
	})
}

type handlers struct {
	deps Deps
}

// weatherView is what presentation sees for one tracked location.
type weatherView struct {
	Location  weather.TrackedLocation `json:"location"`
	Status    weather.Status          `json:"status"`
	Data      *weather.CardViewModel  `json:"data,omitempty"`
	Place     *weather.PlaceResult    `json:"place,omitempty"`
	Error     string                  `json:"error,omitempty"`
	ErrorKind weather.ErrorKind       `json:"errorKind,omitempty"`
	FetchedAt *time.Time              `json:"fetchedAt,omitempty"`
	Fetching  bool                    `json:"fetching"`
}

func newWeatherView(loc weather.TrackedLocation, st weather.State) weatherView {
	v := weatherView{
		Location:  loc,
		Status:    st.Status,
		Data:      st.Data,
		Place:     st.Place,
		ErrorKind: st.ErrorKind,
		Fetching:  st.Fetching,
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	if !st.FetchedAt.IsZero() {
		t := st.FetchedAt
		v.FetchedAt = &t
	}
	return v
}

func (h *handlers) language(c *fiber.Ctx) string {
	if lang := c.Query("lang"); lang != "" {
		return lang
	}
	return h.deps.Language
}

func (h *handlers) location(c *fiber.Ctx) (weather.TrackedLocation, error) {
	loc, err := h.deps.Locations.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return loc, fiber.NewError(fiber.StatusNotFound, "location not found")
		}
		return loc, err
	}
	return loc, nil
}

func (h *handlers) listWeather(c *fiber.Ctx) error {
	lang := h.language(c)
	locs := h.deps.Locations.List()

	views := make([]weatherView, 0, len(locs))
	for _, loc := range locs {
		views = append(views, newWeatherView(loc, h.deps.Service.Query(loc, lang)))
	}
	return c.JSON(views)
}

func (h *handlers) getWeather(c *fiber.Ctx) error {
	loc, err := h.location(c)
	if err != nil {
		return err
	}
	lang := h.language(c)

	if !c.QueryBool("wait") {
		return c.JSON(newWeatherView(loc, h.deps.Service.Query(loc, lang)))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), waitTimeout)
	defer cancel()

	// the view carries the error; last good data stays in it
	st, err := h.deps.Service.Fetch(ctx, loc, lang)
	if errors.Is(err, weather.ErrServiceClosed) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(newWeatherView(loc, st))
}

func (h *handlers) refreshWeather(c *fiber.Ctx) error {
	loc, err := h.location(c)
	if err != nil {
		return err
	}
	lang := h.language(c)

	done := h.deps.Service.Refresh(loc, lang)
	key := weather.Key{LocationID: loc.ID, Language: lang}

	if !c.QueryBool("wait") {
		return c.Status(fiber.StatusAccepted).JSON(newWeatherView(loc, h.deps.Service.Snapshot(key)))
	}

	select {
	case <-done:
	case <-time.After(waitTimeout):
		return fiber.NewError(fiber.StatusGatewayTimeout, "refresh did not complete in time")
	}
	return c.JSON(newWeatherView(loc, h.deps.Service.Snapshot(key)))
}

func (h *handlers) searchPlaces(c *fiber.Ctx) error {
	q := placesQuery{
		Query: c.Query("q"),
		Limit: h.deps.SuggestionLimit,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
		}
		q.Limit = n
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), waitTimeout)
	defer cancel()

	places, err := h.deps.Service.Suggest(ctx, q.Query, q.Limit, h.language(c))
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.JSON(fiber.Map{"results": places})
}

type placesQuery struct {
	Query string `validate:"max=200"`
	Limit int    `validate:"gte=1,lte=100"`
}

// statusFor maps upstream failures onto gateway-style HTTP statuses.
func statusFor(err error) int {
	switch weather.KindOf(err) {
	case weather.ErrorKindNotFound:
		return fiber.StatusNotFound
	case weather.ErrorKindNetwork, weather.ErrorKindHTTPStatus, weather.ErrorKindSchemaViolation:
		return fiber.StatusBadGateway
	}
	if errors.Is(err, weather.ErrServiceClosed) {
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
