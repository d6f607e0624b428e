package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type planOptions struct {
	magnet string
	to     float64
	cycles int
	run    bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the setpoints that move a magnet to a value along its loop",
		Long: `Plan a move for a configured magnet, starting from its configured value and
branch. With --cycles the magnet first runs that many full loops. With --run the
plan is traced through the simulated magnet and the final branch is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.magnet, "magnet", "m", "", "magnet name (default: the first configured)")
	cmd.Flags().Float64Var(&opts.to, "to", 0, "target value")
	cmd.Flags().IntVarP(&opts.cycles, "cycles", "n", 0, "full loops to run before reaching the target")
	cmd.Flags().BoolVar(&opts.run, "run", false, "trace the plan through the simulated magnet")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runPlan(rootOpts *RootOptions, opts *planOptions, cmd *cobra.Command) error {
	cfg, logger, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	station, err := rootOpts.station(cmd, cfg, logger, true)
	if err != nil {
		return err
	}
	name := opts.magnet
	if name == "" {
		if len(cfg.Magnets) == 0 {
			return fmt.Errorf("no magnets configured")
		}
		name = cfg.Magnets[0].Name
	}
	magnet, err := station.Magnet(name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tracker := magnet.Tracker()
	before, err := tracker.Snapshot(ctx)
	if err != nil {
		return err
	}
	plan, err := tracker.CycleToValue(ctx, opts.to, opts.cycles)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "magnet: %s [%g, %g]\n", before.Name, before.Bounds.Bottom, before.Bounds.Top)
	fmt.Fprintf(out, "state:  %s at %g\n", before.State, before.Current)
	fmt.Fprintf(out, "plan:   %s\n", formatPlan(plan))
	if !opts.run {
		return nil
	}

	if err := magnet.Run(ctx, plan); err != nil {
		return err
	}
	after, err := tracker.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "final:  %s at %g\n", after.State, after.Current)
	return nil
}

func formatPlan(plan []float64) string {
	if len(plan) == 0 {
		return "(none)"
	}
	parts := make([]string, len(plan))
	for i, v := range plan {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
