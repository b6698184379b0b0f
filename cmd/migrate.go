package cmd

import (
	"foerderbande/db"

	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs all pending database migrations on the configured database.`,
		Flags:       databaseFlags(),
		Action: func(ctx *cli.Context) error {
			return db.Migrate(dbOptions(ctx))
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Flags:       databaseFlags(),
		Action: func(ctx *cli.Context) error {
			return db.Rollback(dbOptions(ctx))
		},
	}
}
