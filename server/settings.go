package server

import (
	"encoding/json"
	"strings"

	"foerderbande/models"

	"github.com/gofiber/fiber/v2"
)

const userKey = "user"

// requireUser takes the user identity from the header set by the upstream proxy
func requireUser(c *fiber.Ctx) error {
	user := strings.TrimSpace(c.Get(UserIDHeader))
	if user == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing "+UserIDHeader+" header")
	}
	c.Locals(userKey, user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) string {
	user, _ := c.Locals(userKey).(string)
	return user
}

func listSettings(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		settings, err := config.Store.ListUserSettings(c.UserContext(), currentUser(c))
		if err != nil {
			return err
		}
		if settings == nil {
			settings = []models.UserSettings{}
		}
		return c.JSON(settings)
	}
}

// updateSettings merges the body into the stored settings. Known keys are validated, others are kept as given.
func updateSettings(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id")
		if err != nil {
			return err
		}

		var patch models.SettingsPatch
		if err := json.Unmarshal(c.Body(), &patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validateBody(patch); err != nil {
			return err
		}

		var raw map[string]any
		if err := json.Unmarshal(c.Body(), &raw); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if len(raw) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "no settings given")
		}

		settings, err := config.Store.UpdateUserSettings(c.UserContext(), currentUser(c), id, raw)
		if err != nil {
			return storeError(err, "funding call")
		}
		return c.JSON(settings)
	}
}

func toggleFavorite(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id")
		if err != nil {
			return err
		}
		settings, err := config.Store.ToggleFavorite(c.UserContext(), currentUser(c), id)
		if err != nil {
			return storeError(err, "funding call")
		}
		return c.JSON(settings)
	}
}
