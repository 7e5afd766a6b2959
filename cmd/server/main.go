package main

import (
	"os"

	"github.com/anonto42/flick/backend/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

func main() {
	root := &cobra.Command{
		Use:           "flick",
		Short:         "Flick notification backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			config.SetupLogging(cfg)
		},
	}
	root.AddCommand(newServeCommand(), newWorkerCommand())

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
