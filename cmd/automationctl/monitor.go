package main

import (
	"crm-automation-api/internal/monitor"

	"github.com/spf13/cobra"
)

func monitorArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return monitor.EngagementReminder
}

func newScanCmd(boot bootstrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [monitor]",
		Short: "Run one scan now, whether or not the monitor is active",
		Args:  cobra.MaximumNArgs(1),
		RunE: withEnv(boot, func(cmd *cobra.Command, args []string, e *env) error {
			res, err := e.monitors.RunNow(cmd.Context(), monitorArg(args))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newMonitorCmd(boot bootstrapFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Inspect or flip the persisted state of a monitor",
	}

	start := &cobra.Command{
		Use:   "start [monitor]",
		Short: "Mark a monitor active; running servers pick it up on restart",
		Args:  cobra.MaximumNArgs(1),
		RunE: withEnv(boot, func(cmd *cobra.Command, args []string, e *env) error {
			res, err := e.monitors.Start(cmd.Context(), monitorArg(args))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}

	stop := &cobra.Command{
		Use:   "stop [monitor]",
		Short: "Mark a monitor inactive; armed servers disarm on their next tick",
		Args:  cobra.MaximumNArgs(1),
		RunE: withEnv(boot, func(cmd *cobra.Command, args []string, e *env) error {
			name := monitorArg(args)
			if err := e.monitors.Stop(cmd.Context(), name); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"name": name, "stopped": true})
		}),
	}

	status := &cobra.Command{
		Use:   "status [monitor]",
		Short: "Show the persisted state of a monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE: withEnv(boot, func(cmd *cobra.Command, args []string, e *env) error {
			st, err := e.monitors.Status(cmd.Context(), monitorArg(args))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		}),
	}

	cmd.AddCommand(start, stop, status)
	return cmd
}
