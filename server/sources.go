package server

import (
	"crypto/subtle"
	"encoding/json"

	"foerderbande/models"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// requireAdmin guards write access to sources. Without a configured key every request is refused.
func requireAdmin(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return fiber.NewError(fiber.StatusForbidden, "source management is disabled")
		}
		if subtle.ConstantTimeCompare([]byte(c.Get(AdminKeyHeader)), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid admin key")
		}
		return c.Next()
	}
}

func listSources(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sources, err := config.Store.ListSources(c.UserContext())
		if err != nil {
			return err
		}
		if sources == nil {
			sources = []models.Source{}
		}
		return c.JSON(sources)
	}
}

func createSource(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in models.SourceInput
		if err := json.Unmarshal(c.Body(), &in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validateBody(in); err != nil {
			return err
		}

		source, err := config.Store.CreateSource(c.UserContext(), in.ToSource())
		if err != nil {
			return storeError(err, "source")
		}

		log.WithFields(log.Fields{
			"id":   source.ID,
			"name": source.Name,
		}).Info("Created source")

		return c.Status(fiber.StatusCreated).JSON(source)
	}
}

// updateSource applies a partial update: fields missing from the body keep their stored value
func updateSource(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id")
		if err != nil {
			return err
		}

		existing, err := config.Store.GetSource(c.UserContext(), id)
		if err != nil {
			return storeError(err, "source")
		}

		in := existing.Input()
		if err := json.Unmarshal(c.Body(), &in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validateBody(in); err != nil {
			return err
		}

		source, err := config.Store.UpdateSource(c.UserContext(), id, in.ToSource())
		if err != nil {
			return storeError(err, "source")
		}
		return c.JSON(source)
	}
}

func deleteSource(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id")
		if err != nil {
			return err
		}
		if err := config.Store.DeleteSource(c.UserContext(), id); err != nil {
			return storeError(err, "source")
		}

		log.WithFields(log.Fields{
			"id": id,
		}).Info("Deleted source")

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func toggleSource(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id")
		if err != nil {
			return err
		}
		source, err := config.Store.ToggleSourceActive(c.UserContext(), id)
		if err != nil {
			return storeError(err, "source")
		}
		return c.JSON(source)
	}
}
