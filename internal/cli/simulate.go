package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type simulateOptions struct {
	acquisitions int
	cycles       int
	to           float64
	resend       time.Duration
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay acquisitions and magnet cycles on a virtual clock",
		Long: `Run the configured station on a virtual clock: trigger the simulated detector
and wait for each acquisition to settle, then cycle every magnet and park it at
a value. The output is deterministic for a given configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().IntVarP(&opts.acquisitions, "acquisitions", "a", 3, "number of acquisitions")
	cmd.Flags().IntVarP(&opts.cycles, "cycles", "n", 1, "full loops per magnet")
	cmd.Flags().Float64Var(&opts.to, "to", 0, "value each magnet is parked at")
	cmd.Flags().DurationVar(&opts.resend, "resend", 0, "make the detector resend its payload this long after readout")
	return cmd
}

func runSimulate(rootOpts *RootOptions, opts *simulateOptions, cmd *cobra.Command) error {
	cfg, logger, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	if opts.resend > 0 {
		cfg.Detector.ResendAfter = opts.resend
	}
	station, err := rootOpts.station(cmd, cfg, logger, true)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	for i := 1; i <= opts.acquisitions; i++ {
		reading, err := station.Acquire(ctx)
		if err != nil {
			fmt.Fprintf(out, "acquisition %d: failed: %v\n", i, err)
			continue
		}
		fmt.Fprintf(out, "acquisition %d: shot=%d elapsed=%s resets=%d\n",
			i, reading.Payload.Shot, reading.Elapsed, reading.WindowResets)
	}

	for _, name := range station.MagnetNames() {
		magnet, err := station.Magnet(name)
		if err != nil {
			return err
		}
		plan, err := magnet.Cycle(ctx, opts.to, opts.cycles)
		if err != nil {
			return fmt.Errorf("magnet %s: %w", name, err)
		}
		fmt.Fprintf(out, "magnet %s: %d cycle(s) to %g via %s, now %s\n",
			name, opts.cycles, opts.to, formatPlan(plan), magnet.Tracker().StateName())
	}
	return nil
}
