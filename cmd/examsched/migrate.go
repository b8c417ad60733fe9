package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/examslot-api/pkg/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded schema migrations",
	}

	withMigrator := func(run func(cmd *cobra.Command, mg *database.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			mg, err := database.NewMigrator(db.DB, logr)
			if err != nil {
				return err
			}
			return run(cmd, mg)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: withMigrator(func(cmd *cobra.Command, mg *database.Migrator) error {
			return mg.Up()
		}),
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: withMigrator(func(cmd *cobra.Command, mg *database.Migrator) error {
			return mg.Down(steps)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		RunE: withMigrator(func(cmd *cobra.Command, mg *database.Migrator) error {
			version, dirty, err := mg.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	})
	return cmd
}
