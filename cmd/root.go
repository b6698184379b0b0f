package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"foerderbande/config"
	"foerderbande/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	envPrefix         = "FOERDERBANDE_"
	defaultConfigPath = "config/feeds.toml"
)

func env(name string) []string {
	return []string{envPrefix + name}
}

func RootApp() *cli.App {
	return &cli.App{
		Name:  "foerderbande",
		Usage: "Collect funding calls and republish them as RSS and JSON",
		Description: `Collects funding calls for non-profit organisations from RSS feeds,
		JSON APIs and websites, stores them in PostgreSQL and publishes them
		again as RSS feeds and through an HTTP API.

		Flags can generally be set via environment variables, e.g.:

		--db-host => FOERDERBANDE_DB_HOST=localhost
		--port => FOERDERBANDE_PORT=8000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: env("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				EnvVars: env("LOG_FORMAT"),
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)

			switch ctx.String("log-format") {
			case "json":
				log.SetFormatter(&log.JSONFormatter{})
			case "text":
				log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			default:
				return fmt.Errorf("invalid log format %q", ctx.String("log-format"))
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			pollCmd(),
			watchCmd(),
			rssCmd(),
			publishCmd(),
			unpublishCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			sourcesCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute runs the CLI with the process arguments and exits on error
func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db-host",
			Usage:   "PostgreSQL host",
			EnvVars: env("DB_HOST"),
			Value:   "localhost",
		},
		&cli.IntFlag{
			Name:    "db-port",
			Usage:   "PostgreSQL port",
			EnvVars: env("DB_PORT"),
			Value:   5432,
		},
		&cli.StringFlag{
			Name:    "db-user",
			Usage:   "PostgreSQL user",
			EnvVars: env("DB_USER"),
			Value:   "foerderbande",
		},
		&cli.StringFlag{
			Name:    "db-password",
			Usage:   "PostgreSQL password",
			EnvVars: env("DB_PASSWORD"),
			Value:   "foerderbande",
		},
		&cli.StringFlag{
			Name:    "db-name",
			Usage:   "PostgreSQL database name",
			EnvVars: env("DB_NAME"),
			Value:   "foerderbande",
		},
		&cli.StringFlag{
			Name:    "db-sslmode",
			Usage:   "PostgreSQL sslmode (disable, require, verify-full)",
			EnvVars: env("DB_SSLMODE"),
			Value:   "disable",
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   defaultConfigPath,
		Usage:   "Path to the sources and feeds configuration file (TOML or YAML)",
		EnvVars: env("CONFIG"),
	}
}

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, g := range groups {
		flags = append(flags, g...)
	}
	return flags
}

func dbOptions(ctx *cli.Context) db.Options {
	return db.Options{
		Host:     ctx.String("db-host"),
		Port:     ctx.Int("db-port"),
		User:     ctx.String("db-user"),
		Password: ctx.String("db-password"),
		Name:     ctx.String("db-name"),
		SSLMode:  ctx.String("db-sslmode"),
	}
}

func openDB(ctx *cli.Context) (*db.DB, error) {
	opts := dbOptions(ctx)
	log.WithFields(log.Fields{
		"database": opts.String(),
	}).Info("Database configured")

	database, err := db.NewDB(opts)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx.Context); err != nil {
		database.Close()
		return nil, fmt.Errorf("database not reachable: %w", err)
	}
	return database, nil
}

// loadConfig reads the config file. A missing file at the default path yields the defaults.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String("config")
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) && !ctx.IsSet("config") {
		log.WithFields(log.Fields{
			"path": path,
		}).Warn("No config file found, using defaults")
		return config.Default(), nil
	}
	return cfg, err
}
