package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"foerderbande/feeds"
	"foerderbande/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the funding call API and RSS feeds",
		Description: `Starts the HTTP server with the JSON API and the RSS feeds. Unless
--poll=false is given, the sources are polled in the background and new
funding calls are pushed to connected SSE clients.`,
		Flags: withFlags(databaseFlags(), pollerFlags(), []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Host to listen on",
				Value:   "0.0.0.0",
				EnvVars: env("HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   8000,
				EnvVars: env("PORT"),
			},
			&cli.StringFlag{
				Name:    "admin-key",
				Usage:   "Key required in the X-Admin-Key header to modify sources",
				EnvVars: env("ADMIN_KEY"),
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Usage:   "Comma separated origins allowed to call the API",
				Value:   server.DefaultAllowOrigins,
				EnvVars: env("CORS_ORIGINS"),
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				Usage:   "How long rendered RSS feeds are cached",
				Value:   server.DefaultCacheTTL,
				EnvVars: env("CACHE_TTL"),
			},
			&cli.BoolFlag{
				Name:    "poll",
				Usage:   "Poll the sources in the background",
				Value:   true,
				EnvVars: env("POLL"),
			},
		}),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			feedMap, err := feeds.InitializeFeeds(cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Channel for poller events passed on to SSE clients
			events := make(chan interface{}, 100)
			broadcaster := server.NewBroadcaster()

			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				broadcaster.Consume(runCtx, events)
			}()

			if ctx.Bool("poll") {
				p, cleanup, err := newPoller(ctx, database, events)
				if err != nil {
					return err
				}
				defer cleanup()

				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := p.Run(runCtx); err != nil {
						log.Errorf("Poller stopped: %v", err)
					}
				}()
			}

			app := server.Server(&server.ServerConfig{
				Store:           database,
				Broadcaster:     broadcaster,
				Feeds:           feedMap,
				Channel:         feeds.ChannelFromConfig(cfg.RSS),
				AdminKey:        ctx.String("admin-key"),
				AllowOrigins:    ctx.String("cors-origins"),
				CacheExpiration: ctx.Duration("cache-ttl"),
			})

			// Graceful shutdown
			go func() {
				<-runCtx.Done()
				log.Info("Gracefully shutting down...")
				broadcaster.Shutdown()
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Errorf("Failed to shut down server: %v", err)
				}
			}()

			addr := fmt.Sprintf("%s:%d", ctx.String("host"), ctx.Int("port"))
			log.WithFields(log.Fields{
				"address": addr,
				"feeds":   feedMap.IDs(),
				"poll":    ctx.Bool("poll"),
			}).Info("Starting server")

			if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
				stop()
				wg.Wait()
				return fmt.Errorf("server failed: %w", err)
			}

			stop()
			wg.Wait()
			log.Info("Done!")
			return nil
		},
	}
}
