package cmd

import (
	"errors"
	"fmt"
	"time"

	"foerderbande/feeds"
	"foerderbande/publisher"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "Endpoint of an S3 compatible store, e.g. https://<account>.r2.cloudflarestorage.com",
			EnvVars: env("S3_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "Region of the bucket",
			Value:   publisher.DefaultRegion,
			EnvVars: env("S3_REGION"),
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "Bucket the feeds are published to",
			EnvVars: env("S3_BUCKET"),
		},
		&cli.StringFlag{
			Name:    "s3-access-key",
			Usage:   "Access key id, the default AWS credential chain is used when empty",
			EnvVars: env("S3_ACCESS_KEY"),
		},
		&cli.StringFlag{
			Name:    "s3-secret-key",
			Usage:   "Secret access key, prompted for when an access key is given without it",
			EnvVars: env("S3_SECRET_KEY"),
		},
		&cli.BoolFlag{
			Name:    "s3-path-style",
			Usage:   "Address the bucket in the path instead of the host name",
			EnvVars: env("S3_PATH_STYLE"),
		},
		&cli.StringFlag{
			Name:    "prefix",
			Usage:   "Key prefix of the published feeds",
			Value:   "rss",
			EnvVars: env("S3_PREFIX"),
		},
		&cli.StringSliceFlag{
			Name:  "feed",
			Usage: "Only handle these feed IDs",
		},
	}
}

func storageClient(ctx *cli.Context) (*publisher.Client, error) {
	bucket := ctx.String("s3-bucket")
	if bucket == "" {
		return nil, errors.New("please specify a bucket with --s3-bucket")
	}

	accessKey := ctx.String("s3-access-key")
	secretKey := ctx.String("s3-secret-key")
	if accessKey != "" && secretKey == "" {
		var err error
		secretKey, err = prompt.New().Ask("Secret access key:").Input("", input.WithEchoMode(input.EchoNone))
		if err != nil {
			return nil, err
		}
	}

	return publisher.NewClient(ctx.Context, publisher.Options{
		Endpoint:  ctx.String("s3-endpoint"),
		Region:    ctx.String("s3-region"),
		Bucket:    bucket,
		AccessKey: accessKey,
		SecretKey: secretKey,
		PathStyle: ctx.Bool("s3-path-style"),
	})
}

// selectedFeeds returns the publish info of the feeds named by --feed, or of all feeds
func selectedFeeds(ctx *cli.Context, feedMap feeds.FeedMap) ([]feeds.PublishInfo, error) {
	infos := feeds.GetPublishInfo(feedMap, ctx.String("prefix"))
	wanted := ctx.StringSlice("feed")
	if len(wanted) == 0 {
		return infos, nil
	}

	for _, id := range wanted {
		if _, ok := feedMap[id]; !ok {
			return nil, fmt.Errorf("unknown feed %q", id)
		}
	}
	return lo.Filter(infos, func(info feeds.PublishInfo, _ int) bool {
		return lo.Contains(wanted, info.ID)
	}), nil
}

// publishCmd represents the publish command
func publishCmd() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish feeds to object storage",
		Description: `Renders the configured feeds and uploads them to an S3 compatible
bucket (AWS S3, Cloudflare R2, MinIO), so they can be served without the API.

The feed with all funding calls is stored as <prefix>/funding-calls.rss,
every other feed as <prefix>/<id>.rss.`,
		Flags: withFlags(databaseFlags(), storageFlags(), []cli.Flag{configFlag()}),
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

			infos, err := selectedFeeds(ctx, feedMap)
			if err != nil {
				return err
			}

			client, err := storageClient(ctx)
			if err != nil {
				return fmt.Errorf("could not create storage client: %w", err)
			}

			channel := feeds.ChannelFromConfig(cfg.RSS)
			now := time.Now()
			for _, info := range infos {
				body, err := feedMap[info.ID].RSS(ctx.Context, database, channel, now)
				if err != nil {
					return err
				}
				if err := client.PutFeed(ctx.Context, info.ObjectKey, body); err != nil {
					return err
				}
				fmt.Println("Published feed", info.ID, "to", info.ObjectKey)
			}

			log.WithFields(log.Fields{
				"count": len(infos),
			}).Info("Published feeds")
			return nil
		},
	}
}

func unpublishCmd() *cli.Command {
	return &cli.Command{
		Name:        "unpublish",
		Usage:       "Remove published feeds from object storage",
		Description: `Deletes the objects written by publish for the configured feeds.`,
		Flags:       withFlags(storageFlags(), []cli.Flag{configFlag()}),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			feedMap, err := feeds.InitializeFeeds(cfg)
			if err != nil {
				return err
			}

			infos, err := selectedFeeds(ctx, feedMap)
			if err != nil {
				return err
			}

			client, err := storageClient(ctx)
			if err != nil {
				return fmt.Errorf("could not create storage client: %w", err)
			}

			for _, info := range infos {
				if err := client.DeleteFeed(ctx.Context, info.ObjectKey); err != nil {
					return err
				}
				fmt.Println("Unpublished feed", info.ID)
			}
			return nil
		},
	}
}
