package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnsparity/dnsparity/log"
	"github.com/dnsparity/dnsparity/runner"

	"github.com/spf13/cobra"
)

// NewRunCommand creates new command instance
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Args:  cobra.NoArgs,
		Short: "Executes a comparison run",
		RunE:  runRun,
	}
}

func runRun(_ *cobra.Command, _ []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	logger := log.PrefixedLog("run")
	cfg.LogConfig(logger)

	r, err := runner.NewRunner(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := r.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.Report.Path != "" {
		if err := report.WriteFile(cfg.Report.Path); err != nil {
			return err
		}

		logger.Infof("report written to %s", cfg.Report.Path)
	} else if err := report.Write(os.Stdout); err != nil {
		return err
	}

	report.LogSummary(logger)

	if report.Divergent > 0 {
		return fmt.Errorf("%d divergent case(s) found", report.Divergent)
	}

	return nil
}
