// Package cli implements the settle command line.
package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/settle"
	"github.com/aretw0/settle/internal/logging"
	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// NewRootCommand creates the root command for the settle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Coordinate slow devices with small state machines",
		Long: `settle watches triggered detectors until their data has settled and
traces magnet power supplies around their hysteresis loops.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (yaml or json)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides the config")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json), overrides the config")

	cmd.AddCommand(NewVersionCommand())
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the configuration and builds the logger every command uses.
func (o *RootOptions) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return config.Config{}, nil, err
		}
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Log.Format), nil
}

// station builds a station. Manual stations replay sessions without waiting.
func (o *RootOptions) station(cmd *cobra.Command, cfg config.Config, logger *slog.Logger, manual bool) (*settle.Station, error) {
	var clk clock.Clock = clock.System{}
	if manual {
		clk = clock.NewManual(time.Unix(0, 0).UTC())
	}
	station, err := settle.New(cfg, settle.WithClock(clk), settle.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build station: %w", err)
	}
	return station, nil
}
