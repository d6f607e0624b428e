package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/aretw0/settle/pkg/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownGrace = 5 * time.Second

type serveOptions struct {
	addr     string
	interval time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulated station and expose its state over HTTP",
		Long: `Starts the simulated station on the wall clock, acquiring in a loop, and serves
machine states on /machines and Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default: server.addr from the config)")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "pause between acquisitions")
	return cmd
}

func runServe(rootOpts *RootOptions, opts *serveOptions, cmd *cobra.Command) error {
	cfg, logger, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", opts.interval)
	}
	station, err := rootOpts.station(cmd, cfg, logger, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpAdapter.NewHandler(station.Machines, station.Registry, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		station.Loop(ctx, opts.interval)
	}()

	select {
	case err := <-serverErrors:
		stop()
		<-loopDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down", "cause", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete", "timeout", shutdownGrace, "err", err)
		if err := srv.Close(); err != nil {
			return fmt.Errorf("error killing server: %w", err)
		}
	}
	<-loopDone
	logger.Info("server stopped gracefully")
	return nil
}
