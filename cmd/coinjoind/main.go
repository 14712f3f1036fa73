package main

import (
	"fmt"
	"os"

	"github.com/ark-network/coinjoin/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cfg *config.Config

func main() {
	app := cli.NewApp()

	app.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	app.Name = "coinjoind"
	app.Usage = "coinjoin participation daemon"
	app.Commands = append(
		app.Commands,
		startCmd,
		simulateCmd,
		settingsCmd,
	)

	app.Before = func(ctx *cli.Context) error {
		c, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("invalid config: %s", err)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %s", err)
		}
		log.SetLevel(log.Level(c.LogLevel))
		cfg = c
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("coinjoind failed")
	}
}
