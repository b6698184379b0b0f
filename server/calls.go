package server

import (
	"strconv"
	"strings"
	"time"

	"foerderbande/feeds"
	"foerderbande/models"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

const maxPageSize = 1000

func listFundingCalls(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := models.CallQuery{
			Source: strings.TrimSpace(c.Query("source")),
			Search: strings.TrimSpace(c.Query("q")),
		}

		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > maxPageSize {
				return fiber.NewError(fiber.StatusBadRequest, "invalid limit")
			}
			q.Limit = limit
		}

		if raw := c.Query("cursor"); raw != "" {
			cursor, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || cursor < 1 {
				return fiber.NewError(fiber.StatusBadRequest, "invalid cursor")
			}
			q.Cursor = cursor
		}

		calls, err := config.Store.ListFundingCalls(c.UserContext(), q)
		if err != nil {
			return err
		}
		if calls == nil {
			calls = []models.FundingCall{}
		}

		// A full page means there may be more
		if q.Limit > 0 && len(calls) == q.Limit {
			c.Set(NextCursorHeader, strconv.FormatInt(calls[len(calls)-1].ID, 10))
		}

		return c.JSON(calls)
	}
}

func getFundingCall(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c, "id")
		if err != nil {
			return err
		}

		call, err := config.Store.GetFundingCall(c.UserContext(), id)
		if err != nil {
			return storeError(err, "funding call")
		}
		return c.JSON(call)
	}
}

type feedInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Limit       int    `json:"limit"`
	URL         string `json:"url"`
}

func feedPath(id string) string {
	if id == feeds.DefaultFeedID {
		return "/rss/funding-calls"
	}
	return "/rss/feeds/" + id
}

func listFeeds(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		infos := make([]feedInfo, 0, len(config.Feeds))
		for _, id := range config.Feeds.IDs() {
			feed := config.Feeds[id]
			infos = append(infos, feedInfo{
				ID:          feed.ID,
				Title:       feed.Title,
				Description: feed.Description,
				Limit:       feed.Limit,
				URL:         feedPath(feed.ID),
			})
		}
		return c.JSON(infos)
	}
}

func renderFeed(config *ServerConfig, id string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		feed, ok := config.Feeds[id]
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "feed not found")
		}

		body, err := feed.RSS(c.UserContext(), config.Store, config.Channel, time.Now())
		if err != nil {
			return err
		}

		filename := id + ".rss"
		if id == feeds.DefaultFeedID {
			filename = "funding-calls.rss"
		}

		log.WithFields(log.Fields{
			"feed":  id,
			"bytes": len(body),
		}).Debug("Rendered feed")

		c.Set(fiber.HeaderContentType, feeds.RSSContentType)
		c.Set(fiber.HeaderContentDisposition, "inline; filename="+filename)
		return c.SendString(body)
	}
}
