package main

import (
	"crm-automation-api/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(boot bootstrapFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all migrations",
		RunE: withEnv(boot, func(cmd *cobra.Command, _ []string, e *env) error {
			return database.RunMigrations(cmd.Context(), e.db, true, e.log)
		}),
	}

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Drop every table the migrations created",
		RunE: withEnv(boot, func(cmd *cobra.Command, _ []string, e *env) error {
			if !confirm {
				cmd.PrintErrln("refusing to drop tables without --yes")
				return nil
			}
			return database.RollbackMigrations(cmd.Context(), e.db, e.log)
		}),
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping all tables")

	cmd.AddCommand(up, down)
	return cmd
}
