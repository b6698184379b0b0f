package cmd

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing funding calls whose deadline has
		passed and raw feed entries that are no longer fetched.

		Removes rows older than the retention period, 90 days by default.
		This is to keep the database size down and to keep the feeds fresh.`,
		Flags: withFlags(databaseFlags(), []cli.Flag{
			&cli.DurationFlag{
				Name:    "retention",
				Usage:   "How long expired funding calls are kept",
				Value:   90 * 24 * time.Hour,
				EnvVars: env("RETENTION"),
			},
		}),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			result, err := database.Tidy(ctx.Context, ctx.Duration("retention"))
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"funding_calls": result.FundingCalls,
				"feed_entries":  result.FeedEntries,
			}).Info("Tidied database")
			return nil
		},
	}
}
