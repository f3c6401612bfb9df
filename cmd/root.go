// Package cmd provides the command line interface
package cmd

import (
	"fmt"

	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/log"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals
var (
	version   = "undefined"
	buildTime = "undefined"

	configPath string
)

// NewRootCommand creates the root command, running a comparison run is the
// default action
func NewRootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "dnsparity",
		Short: "dnsparity tests two DNS backends for response equivalence",
		Long: `dnsparity generates a deterministic DNS query corpus, sends every query
to a reference nameserver and to a resolver library, and reports semantic
differences between the answers.`,
		RunE:          runRun,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yml", "path to config file")

	c.AddCommand(
		NewRunCommand(),
		NewValidateCommand(),
		NewVersionCommand(),
	)

	return c
}

// initConfig loads and validates the configuration and applies the log
// settings
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to load configuration: %w", err)
	}

	log.ConfigureLogger(cfg.Log)

	return cfg, nil
}

// Execute runs the root command and exits the process on error
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Log().Fatalf("Error: %s", log.EscapeInput(err.Error()))
	}
}
