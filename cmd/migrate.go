package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farm-seeder/internal/sink"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the sink schema (postgis, mysql, sqlite, mongo)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		s, err := sink.Open(ctx, cfg.Sink)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := migrateSink(ctx, s); err != nil {
			return err
		}

		zap.L().Info("sink schema up to date",
			zap.String("driver", cfg.Sink.Driver),
			zap.String("table", cfg.Sink.Table),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s sink (%s)\n", cfg.Sink.Driver, cfg.Sink.Table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
