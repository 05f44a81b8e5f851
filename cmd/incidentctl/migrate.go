package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/store-incident-api/pkg/migrations"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: withRunner(func(cmd *cobra.Command, runner *migrations.Runner) error {
			return runner.Down(cmd.Context(), steps)
		}),
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withRunner(func(cmd *cobra.Command, runner *migrations.Runner) error {
				return runner.Up(cmd.Context())
			}),
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version and per-migration state",
			RunE: withRunner(func(cmd *cobra.Command, runner *migrations.Runner) error {
				version, err := runner.Version(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", version)
				return runner.Status(cmd.Context())
			}),
		},
	)
	return cmd
}

func withRunner(fn func(cmd *cobra.Command, runner *migrations.Runner) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		env, err := openEnvironment()
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(cmd, migrations.NewRunner(env.db.DB, env.logger))
	}
}
