package cmd

import (
	"errors"
	"fmt"
	"strings"

	"foerderbande/db"
	"foerderbande/models"

	"github.com/cqroot/prompt"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var sourceTypes = []string{
	string(models.SourceTypeRSS),
	string(models.SourceTypeAPI),
	string(models.SourceTypeWebsite),
}

func sourcesCmd() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Manage the polled sources",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sources",
				Flags:  databaseFlags(),
				Action: withDB(listSourcesAction),
			},
			{
				Name:  "add",
				Usage: "Add a source, asking for missing values",
				Flags: withFlags(databaseFlags(), []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Unique name, used as source label of its funding calls"},
					&cli.StringFlag{Name: "url", Usage: "Feed, API or page URL"},
					&cli.StringFlag{Name: "type", Usage: "Source type (rss, api, website)"},
					&cli.StringFlag{Name: "description", Usage: "Free text description"},
					&cli.StringFlag{Name: "selector", Usage: "CSS selector of the call links on website sources"},
					&cli.StringSliceFlag{Name: "languages", Usage: "Accepted languages when language detection is enabled"},
					&cli.StringSliceFlag{Name: "keywords", Usage: "Only keep items containing one of these keywords"},
					&cli.StringSliceFlag{Name: "exclude", Usage: "Drop items containing one of these keywords"},
					&cli.BoolFlag{Name: "disabled", Usage: "Add the source without polling it"},
				}),
				Action: withDB(addSourceAction),
			},
			{
				Name:      "remove",
				Usage:     "Remove a source by name",
				ArgsUsage: "<name>",
				Flags:     databaseFlags(),
				Action: withDB(func(ctx *cli.Context, database *db.DB) error {
					source, err := sourceArg(ctx, database)
					if err != nil {
						return err
					}
					if err := database.DeleteSource(ctx.Context, source.ID); err != nil {
						return err
					}
					fmt.Println("Removed source", source.Name)
					return nil
				}),
			},
			{
				Name:      "enable",
				Usage:     "Enable polling of a source",
				ArgsUsage: "<name>",
				Flags:     databaseFlags(),
				Action:    withDB(setActiveAction(true)),
			},
			{
				Name:      "disable",
				Usage:     "Disable polling of a source",
				ArgsUsage: "<name>",
				Flags:     databaseFlags(),
				Action:    withDB(setActiveAction(false)),
			},
		},
	}
}

func withDB(action func(ctx *cli.Context, database *db.DB) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		database, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		return action(ctx, database)
	}
}

func sourceArg(ctx *cli.Context, database *db.DB) (models.Source, error) {
	name := strings.TrimSpace(ctx.Args().First())
	if name == "" {
		return models.Source{}, errors.New("please specify the source name")
	}
	source, err := database.GetSourceByName(ctx.Context, name)
	if errors.Is(err, db.ErrNotFound) {
		return source, fmt.Errorf("no source named %q", name)
	}
	return source, err
}

func listSourcesAction(ctx *cli.Context, database *db.DB) error {
	sources, err := database.ListSources(ctx.Context)
	if err != nil {
		return err
	}

	fmt.Printf("%-4s %-24s %-8s %-7s %-9s %s\n", "ID", "NAME", "TYPE", "ACTIVE", "FAILURES", "URL")
	for _, s := range sources {
		fmt.Printf("%-4d %-24s %-8s %-7t %-9d %s\n", s.ID, s.Name, s.Type, s.IsActive, s.FailureCount, s.URL)
	}
	return nil
}

func addSourceAction(ctx *cli.Context, database *db.DB) error {
	active := !ctx.Bool("disabled")
	in := models.SourceInput{
		Name:            ctx.String("name"),
		URL:             ctx.String("url"),
		Type:            ctx.String("type"),
		Description:     ctx.String("description"),
		IsActive:        &active,
		Selector:        ctx.String("selector"),
		Languages:       ctx.StringSlice("languages"),
		Keywords:        ctx.StringSlice("keywords"),
		ExcludeKeywords: ctx.StringSlice("exclude"),
	}

	var err error
	if in.Name == "" {
		if in.Name, err = prompt.New().Ask("Name:").Input(""); err != nil {
			return err
		}
	}
	if in.URL == "" {
		if in.URL, err = prompt.New().Ask("URL:").Input("https://"); err != nil {
			return err
		}
	}
	if in.Type == "" {
		if in.Type, err = prompt.New().Ask("Type:").Choose(sourceTypes); err != nil {
			return err
		}
	}
	if in.Type == string(models.SourceTypeWebsite) && in.Selector == "" {
		if in.Selector, err = prompt.New().Ask("CSS selector:").Input("a[href]"); err != nil {
			return err
		}
	}

	if err := validator.New().Struct(in); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	source, err := database.CreateSource(ctx.Context, in.ToSource())
	if errors.Is(err, db.ErrConflict) {
		return fmt.Errorf("a source named %q already exists", in.Name)
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"id":   source.ID,
		"name": source.Name,
		"type": source.Type,
	}).Info("Added source")
	return nil
}

func setActiveAction(active bool) func(ctx *cli.Context, database *db.DB) error {
	return func(ctx *cli.Context, database *db.DB) error {
		source, err := sourceArg(ctx, database)
		if err != nil {
			return err
		}
		if _, err := database.SetSourceActive(ctx.Context, source.ID, active); err != nil {
			return err
		}
		fmt.Printf("Source %s active: %t\n", source.Name, active)
		return nil
	}
}
