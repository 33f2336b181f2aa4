package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-tracker/internal/store"
	"github.com/i474232898/weather-tracker/internal/weather"
)

// updateLocationRequest is the body of PUT /locations/:id.
type updateLocationRequest struct {
	Name      string   `json:"name" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (h *handlers) listLocations(c *fiber.Ctx) error {
	return c.JSON(h.deps.Locations.List())
}

func (h *handlers) addLocation(c *fiber.Ctx) error {
	var req store.AddInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc, outcome, err := h.deps.Locations.Add(req)
	switch {
	case errors.Is(err, store.ErrDuplicateID):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		return err
	case outcome == store.AddIgnored:
		return fiber.NewError(fiber.StatusBadRequest, "name must not be blank")
	case outcome == store.AddAppended:
		return c.Status(fiber.StatusCreated).JSON(loc)
	}
	return c.JSON(loc)
}

func (h *handlers) updateLocation(c *fiber.Ctx) error {
	var req updateLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc, err := h.deps.Locations.Update(weather.TrackedLocation{
		ID:        c.Params("id"),
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "location not found")
	case errors.Is(err, store.ErrDuplicateName), errors.Is(err, store.ErrEmptyName):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(loc)
}

func (h *handlers) removeLocation(c *fiber.Ctx) error {
	removed, err := h.deps.Locations.Remove(c.Params("key"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "location not found")
		}
		return err
	}

	h.deps.Service.Forget(removed.ID)
	return c.JSON(removed)
}
