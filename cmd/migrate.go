package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Prepare the workspace schema and apply run store migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		// openBackends migrates the store as part of opening it.
		b, err := openBackends(ctx, true)
		if err != nil {
			return err
		}
		defer b.Close()

		if b.pgWS != nil {
			if err := b.pgWS.EnsureSchema(ctx); err != nil {
				return eris.Wrap(err, "migrate workspace")
			}
		}

		zap.L().Info("migrations complete",
			zap.String("workspace", cfg.Workspace.Driver),
			zap.String("store", cfg.Store.Driver),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
