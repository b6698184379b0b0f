// Package server exposes funding calls, sources, user settings and RSS feeds over HTTP
package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"foerderbande/db"
	"foerderbande/feeds"
	"foerderbande/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	Version             = "0.1.0"
	DefaultAllowOrigins = "http://localhost:5173"
	DefaultCacheTTL     = time.Minute

	UserIDHeader     = "X-User-ID"
	AdminKeyHeader   = "X-Admin-Key"
	NextCursorHeader = "X-Next-Cursor"
)

// Store is the subset of the database used by the HTTP handlers
type Store interface {
	feeds.CallQuerier

	Ping(ctx context.Context) error

	ListFundingCalls(ctx context.Context, q models.CallQuery) ([]models.FundingCall, error)
	GetFundingCall(ctx context.Context, id int64) (models.FundingCall, error)

	ListSources(ctx context.Context) ([]models.Source, error)
	GetSource(ctx context.Context, id int64) (models.Source, error)
	CreateSource(ctx context.Context, s models.Source) (models.Source, error)
	UpdateSource(ctx context.Context, id int64, s models.Source) (models.Source, error)
	DeleteSource(ctx context.Context, id int64) error
	ToggleSourceActive(ctx context.Context, id int64) (models.Source, error)

	ListUserSettings(ctx context.Context, userID string) ([]models.UserSettings, error)
	UpdateUserSettings(ctx context.Context, userID string, callID int64, patch map[string]any) (models.UserSettings, error)
	ToggleFavorite(ctx context.Context, userID string, callID int64) (models.UserSettings, error)
}

type ServerConfig struct {

	// The store to read funding calls, sources and settings from
	Store Store

	// Broadcast channels to pass new calls and poll statistics to SSE clients
	Broadcaster *Broadcaster

	// Output feeds, including the default feed
	Feeds feeds.FeedMap

	// Channel metadata of the generated RSS documents
	Channel feeds.ChannelInfo

	// Key required to modify sources. Source management is disabled when empty.
	AdminKey string

	// Comma separated list of origins allowed by CORS
	AllowOrigins string

	// How long rendered RSS responses are cached
	CacheExpiration time.Duration
}

// Returns a fiber.App instance to be used as the HTTP server of the funding monitor
func Server(config *ServerConfig) *fiber.App {
	if config.Broadcaster == nil {
		config.Broadcaster = NewBroadcaster()
	}
	if config.AllowOrigins == "" {
		config.AllowOrigins = DefaultAllowOrigins
	}
	if config.CacheExpiration == 0 {
		config.CacheExpiration = DefaultCacheTTL
	}

	app := fiber.New(fiber.Config{
		AppName:               "foerderbande",
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if err := errorHandler(c, err); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return nil
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowOrigins,
		AllowHeaders:     strings.Join([]string{"Origin", "Content-Type", "Accept", "Cache-Control", UserIDHeader, AdminKeyHeader}, ", "),
		ExposeHeaders:    NextCursorHeader,
		AllowCredentials: config.AllowOrigins != "*",
	}))

	// Only rendered feeds are cached
	app.Use(cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			return !strings.HasPrefix(c.Path(), "/rss/")
		},
		Expiration: config.CacheExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Request().URI().String()
		},
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Funding Monitor API", "version": Version})
	})

	app.Get("/hello/:name", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Hello " + c.Params("name")})
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := config.Store.Ping(c.UserContext()); err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Warn("Health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// The SSE routes must be registered before /:id
	app.Get("/api/funding-calls/sse", streamEvents(config.Broadcaster))
	app.Delete("/api/funding-calls/sse", func(c *fiber.Ctx) error {
		config.Broadcaster.RemoveClient(c.Query("key"))
		return c.SendString("OK")
	})
	app.Get("/api/funding-calls", listFundingCalls(config))
	app.Get("/api/funding-calls/:id", getFundingCall(config))

	app.Get("/api/feeds", listFeeds(config))
	app.Get("/rss/funding-calls", renderFeed(config, feeds.DefaultFeedID))
	app.Get("/rss/feeds/:feed", func(c *fiber.Ctx) error {
		return renderFeed(config, c.Params("feed"))(c)
	})

	admin := requireAdmin(config.AdminKey)
	app.Get("/api/sources", listSources(config))
	app.Post("/api/sources", admin, createSource(config))
	app.Patch("/api/sources/:id", admin, updateSource(config))
	app.Delete("/api/sources/:id", admin, deleteSource(config))
	app.Post("/api/sources/:id/toggle", admin, toggleSource(config))

	me := app.Group("/api/me", requireUser)
	me.Get("/settings", listSettings(config))
	me.Patch("/funding-calls/:id/settings", updateSettings(config))
	me.Post("/funding-calls/:id/favorite", toggleFavorite(config))

	return app
}

// errorHandler renders every error as {"error": "..."}
func errorHandler(c *fiber.Ctx, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  verr.Error(),
			"fields": verr.Fields,
		})
	}

	code := fiber.StatusInternalServerError
	message := "internal server error"

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
		message = ferr.Message
	}

	if code >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"error":  err,
		}).Error("Request failed")
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}

// storeError maps the database sentinels to HTTP errors
func storeError(err error, what string) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, what+" not found")
	case errors.Is(err, db.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, what+" already exists")
	}
	return err
}
