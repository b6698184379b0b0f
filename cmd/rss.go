package cmd

import (
	"fmt"
	"os"
	"time"

	"foerderbande/feeds"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func rssCmd() *cli.Command {
	return &cli.Command{
		Name:  "rss",
		Usage: "Render a feed as RSS",
		Description: `Renders one of the configured feeds, by default the feed with all
funding calls, and writes the RSS document to stdout or to --output.`,
		Flags: withFlags(databaseFlags(), []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "feed",
				Aliases: []string{"f"},
				Usage:   "ID of the feed to render",
				Value:   feeds.DefaultFeedID,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "File to write the feed to",
			},
		}),
		Action: func(ctx *cli.Context) error {
			output := ctx.String("output")
			if output == "" {
				log.SetOutput(os.Stderr)
			}

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

			feed, ok := feedMap[ctx.String("feed")]
			if !ok {
				return fmt.Errorf("unknown feed %q, available: %v", ctx.String("feed"), feedMap.IDs())
			}

			body, err := feed.RSS(ctx.Context, database, feeds.ChannelFromConfig(cfg.RSS), time.Now())
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Println(body)
				return nil
			}

			if err := os.WriteFile(output, []byte(body), 0o644); err != nil {
				return fmt.Errorf("failed to write feed: %w", err)
			}

			log.WithFields(log.Fields{
				"feed":   feed.ID,
				"output": output,
			}).Info("Feed written")
			return nil
		},
	}
}
