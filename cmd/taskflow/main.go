package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	paramServer   = "server"
	paramToken    = "token"
	paramDebug    = "debug"
	paramLogLevel = "log-level"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "taskflow",
		Usage: "manage your tasks from the terminal",
		Commands: []*cli.Command{
			listCommand(),
			statsCommand(),
			addCommand(),
			editCommand(),
			advanceCommand(),
			removeCommand(),
			tokenCommand(),
		},
		Before: func(ctx *cli.Context) error {
			log.SetOutput(ctx.App.ErrWriter)
			log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

			level, err := log.ParseLevel(ctx.String(paramLogLevel))
			if err != nil {
				return errors.Wrap(err, "invalid log level")
			}
			if ctx.Bool(paramDebug) {
				level = log.DebugLevel
			}
			log.SetLevel(level)
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    paramServer,
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				EnvVars: []string{"TASKFLOW_SERVER"},
				Usage:   "taskflow API base url",
			},
			&cli.StringFlag{
				Name:    paramToken,
				EnvVars: []string{"TASKFLOW_TOKEN"},
				Usage:   "bearer token of the signed-in user",
			},
			&cli.BoolFlag{
				Name:    paramDebug,
				EnvVars: []string{"TASKFLOW_DEBUG"},
				Usage:   "Toggle debug mode",
			},
			&cli.StringFlag{
				Name:    paramLogLevel,
				Value:   "info",
				EnvVars: []string{"TASKFLOW_LOG_LEVEL"},
				Usage:   "Set logging level",
			},
		},
	}

	app.ExitErrHandler = func(ctx *cli.Context, err error) {
		if err == nil || errors.Is(err, errNotified) {
			return
		}
		if ctx.Bool(paramDebug) {
			log.Error(fmt.Sprintf("%+v", err))
			return
		}
		log.Error(err.Error())
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))
	return app
}
