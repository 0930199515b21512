package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/banshee-data/restframe/internal/db"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|status|version N|force N|help>",
		Short: "Manage the run ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.dbPath == "" {
				return errors.New("migrate requires --db")
			}
			database, err := db.OpenDB(o.dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			return db.RunMigrateCommand(cmd.OutOrStdout(), database, args)
		},
	}
}
