package httpapi

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-tracker/internal/store"
)

func (h *handlers) getSettings(c *fiber.Ctx) error {
	return c.JSON(h.deps.Settings.Get())
}

func (h *handlers) updateSettings(c *fiber.Ctx) error {
	var patch store.SettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	settings, err := h.deps.Settings.Update(patch)
	if err != nil {
		if errors.Is(err, store.ErrInvalidSettings) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}
	h.apply(settings)
	return c.JSON(settings)
}

func (h *handlers) resetSettings(c *fiber.Ctx) error {
	settings, err := h.deps.Settings.Reset()
	if err != nil {
		return err
	}
	h.apply(settings)
	return c.JSON(settings)
}

// apply pushes persisted settings into the running service and scheduler.
func (h *handlers) apply(settings store.Settings) {
	policy := settings.Policy()
	h.deps.Service.SetPolicy(policy)
	if h.deps.Rescheduler == nil {
		return
	}
	if err := h.deps.Rescheduler.Reschedule(policy.RefetchInterval); err != nil {
		log.Printf("ERROR: failed to reschedule refresh: %v", err)
	}
}
