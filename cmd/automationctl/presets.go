package main

import (
	"fmt"

	"crm-automation-api/internal/preset"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newPresetsCmd(boot bootstrapFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Predefined automation rules",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the built-in presets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range preset.Defaults() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-16s %s\n", p.Key, p.TriggerType, p.Name)
			}
			return nil
		},
	}

	var owner string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Install the built-in presets for an owner (idempotent)",
		RunE: withEnv(boot, func(cmd *cobra.Command, _ []string, e *env) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid --owner %q: %w", owner, err)
			}
			res, err := preset.Apply(cmd.Context(), e.presets, ownerID, preset.Defaults(), e.log)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
	apply.Flags().StringVar(&owner, "owner", "", "owner (user) id (required)")
	_ = apply.MarkFlagRequired("owner")

	cmd.AddCommand(list, apply)
	return cmd
}
