package cmd

import (
	"context"
	"time"

	"foerderbande/config"
	"foerderbande/db"
	"foerderbande/models"
	"foerderbande/poller"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func pollerFlags() []cli.Flag {
	defaults := poller.DefaultConfig()
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Time between two polls of all sources",
			Value:   defaults.Interval,
			EnvVars: env("POLL_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "poll-workers",
			Usage:   "Number of sources fetched in parallel",
			Value:   defaults.Workers,
			EnvVars: env("POLL_WORKERS"),
		},
		&cli.DurationFlag{
			Name:    "poll-timeout",
			Usage:   "Timeout of a single fetch attempt",
			Value:   defaults.Timeout,
			EnvVars: env("POLL_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "user-agent",
			Usage:   "User-Agent sent to sources",
			Value:   defaults.UserAgent,
			EnvVars: env("USER_AGENT"),
		},
		&cli.Float64Flag{
			Name:    "requests-per-second",
			Usage:   "Maximum outgoing requests per second",
			Value:   defaults.RequestsPerSecond,
			EnvVars: env("REQUESTS_PER_SECOND"),
		},
		&cli.IntFlag{
			Name:    "burst",
			Usage:   "Burst capacity of the request rate limiter",
			Value:   defaults.BurstCapacity,
			EnvVars: env("BURST"),
		},
		&cli.Uint64Flag{
			Name:    "max-retries",
			Usage:   "Retries of a failing fetch before giving up",
			Value:   defaults.MaxRetries,
			EnvVars: env("MAX_RETRIES"),
		},
		&cli.UintFlag{
			Name:    "breaker-threshold",
			Usage:   "Consecutive failures before a source is paused",
			Value:   uint(defaults.BreakerFailureThreshold),
			EnvVars: env("BREAKER_THRESHOLD"),
		},
		&cli.DurationFlag{
			Name:    "breaker-timeout",
			Usage:   "How long a paused source is skipped",
			Value:   defaults.BreakerTimeout,
			EnvVars: env("BREAKER_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "detect-language",
			Usage:   "Drop items not written in one of the source languages",
			EnvVars: env("DETECT_LANGUAGE"),
		},
		&cli.StringSliceFlag{
			Name:    "languages",
			Usage:   "ISO 639-1 languages loaded into the language detector",
			Value:   cli.NewStringSlice(defaults.Languages...),
			EnvVars: env("LANGUAGES"),
		},
		&cli.Float64Flag{
			Name:    "confidence-threshold",
			Usage:   "Minimum language detection confidence",
			Value:   defaults.ConfidenceThreshold,
			EnvVars: env("CONFIDENCE_THRESHOLD"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL of the shared seen-entry cache, in-memory cache when empty",
			EnvVars: env("REDIS_URL"),
		},
		&cli.DurationFlag{
			Name:    "seen-ttl",
			Usage:   "How long fetched entries are remembered",
			Value:   7 * 24 * time.Hour,
			EnvVars: env("SEEN_TTL"),
		},
	}
}

func pollerConfig(ctx *cli.Context) poller.Config {
	cfg := poller.DefaultConfig()
	cfg.Interval = ctx.Duration("poll-interval")
	cfg.Workers = ctx.Int("poll-workers")
	cfg.Timeout = ctx.Duration("poll-timeout")
	cfg.UserAgent = ctx.String("user-agent")
	cfg.RequestsPerSecond = ctx.Float64("requests-per-second")
	cfg.BurstCapacity = ctx.Int("burst")
	cfg.MaxRetries = ctx.Uint64("max-retries")
	cfg.BreakerFailureThreshold = uint32(ctx.Uint("breaker-threshold"))
	cfg.BreakerTimeout = ctx.Duration("breaker-timeout")
	cfg.DetectLanguage = ctx.Bool("detect-language")
	cfg.Languages = lo.Uniq(ctx.StringSlice("languages"))
	cfg.ConfidenceThreshold = ctx.Float64("confidence-threshold")
	return cfg
}

type closableSeenCache interface {
	poller.SeenCache
	Close() error
}

// newSeenCache uses Redis when a URL is configured, an in-memory cache otherwise
func newSeenCache(ctx *cli.Context) (closableSeenCache, error) {
	ttl := ctx.Duration("seen-ttl")
	if url := ctx.String("redis-url"); url != "" {
		log.Info("Using Redis seen cache")
		return poller.NewRedisSeenCache(url, ttl)
	}
	log.Info("Using in-memory seen cache")
	return poller.NewMemorySeenCache(ttl)
}

// syncConfiguredSources stores the sources declared in the config file
func syncConfiguredSources(ctx context.Context, database *db.DB, cfg *config.Config) error {
	if len(cfg.Sources) == 0 {
		return nil
	}
	sources := lo.Map(cfg.Sources, func(s config.SourceConfig, _ int) models.Source {
		return s.ToSource()
	})
	return database.SyncSources(ctx, sources)
}

// newPoller opens the seen cache and creates a poller for the configured sources
func newPoller(ctx *cli.Context, database *db.DB, events chan interface{}) (*poller.Poller, func(), error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := syncConfiguredSources(ctx.Context, database, cfg); err != nil {
		return nil, nil, err
	}

	seen, err := newSeenCache(ctx)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := seen.Close(); err != nil {
			log.Warnf("Failed to close seen cache: %v", err)
		}
	}

	return poller.New(database, seen, pollerConfig(ctx), events), cleanup, nil
}

func pollCmd() *cli.Command {
	return &cli.Command{
		Name:  "poll",
		Usage: "Fetch all active sources once",
		Description: `Fetches every active source once, stores new and changed funding calls
and exits. Useful as a cron job when the server runs without its poller.`,
		Flags: withFlags(databaseFlags(), pollerFlags(), []cli.Flag{configFlag()}),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			p, cleanup, err := newPoller(ctx, database, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := p.PollOnce(ctx.Context)
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"sources":  stats.Sources,
				"failed":   stats.Failed,
				"inserted": stats.Inserted,
				"updated":  stats.Updated,
			}).Info("Poll finished")
			return nil
		},
	}
}
