package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/geosync/migrations"
	"github.com/iota-uz/geosync/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configuration.Use()
			defer conf.Unload()

			if down {
				return migrations.Down(cmd.Context(), conf.Database.Opts)
			}
			return migrations.Up(cmd.Context(), conf.Database.Opts)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration instead")
	return cmd
}
