package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/database"
)

var migratePrint bool

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the feed tables if they do not exist",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if migratePrint {
			return nil
		}
		return persistentPreRun(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if migratePrint {
			fmt.Print(database.Schema())
			return nil
		}
		if err := database.EnsureSchema(cmd.Context(), database.Pool()); err != nil {
			return err
		}
		logger.Info().Msg("Schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "Print the schema instead of applying it")
}
