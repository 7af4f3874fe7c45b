package main

import (
	"github.com/spf13/cobra"

	"clockify-sync/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(cmd.Context(), logger, cfg)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
