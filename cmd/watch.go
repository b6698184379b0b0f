package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"foerderbande/models"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Poll the sources and print new funding calls to the command line",
		Description: `Polls the active sources on the configured interval and prints every
new or updated funding call.

Returns each funding call as a JSON object on a single line. Use a tool like jq
to process the output.

Prints all other log messages to stderr.`,
		Flags: withFlags(databaseFlags(), pollerFlags(), []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:    "updates",
				Usage:   "Also print funding calls that changed",
				EnvVars: env("WATCH_UPDATES"),
			},
		}),
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the funding calls
			log.SetOutput(os.Stderr)

			database, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			events := make(chan interface{})
			p, cleanup, err := newPoller(ctx, database, events)
			if err != nil {
				return err
			}
			defer cleanup()

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			done := make(chan error, 1)
			go func() {
				done <- p.Run(runCtx)
			}()

			withUpdates := ctx.Bool("updates")
			for {
				select {
				case err := <-done:
					log.Info("Stopping watch")
					return err
				case event := <-events:
					switch event := event.(type) {
					case models.CreateCallEvent:
						printStdout(&event.Call)
					case models.UpdateCallEvent:
						if withUpdates {
							printStdout(&event.Call)
						}
					case models.PollStatisticsEvent:
						log.WithFields(log.Fields{
							"inserted": event.Stats.Inserted,
							"updated":  event.Stats.Updated,
						}).Info("Poll finished")
					}
				}
			}
		},
	}
}

func printStdout(call *models.FundingCall) {
	// Print as single JSON string on a single line
	callJSON, err := json.Marshal(call)
	if err == nil {
		fmt.Println(string(callJSON))
	}
}
