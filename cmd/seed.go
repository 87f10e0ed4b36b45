package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farm-seeder/internal/config"
	"github.com/sells-group/farm-seeder/internal/leads"
	"github.com/sells-group/farm-seeder/internal/seeder"
)

var (
	seedFile    string
	seedDryRun  bool
	seedPause   time.Duration
	seedLimit   int
	seedMigrate bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Geocode leads and insert them into the sink",
	Long:  "Checks each lead by name, geocodes its address, and inserts an unclaimed farm record. Leads already in the sink are skipped, so an interrupted run can simply be started again.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		file := cfg.Seed.LeadsFile
		if seedFile != "" {
			file = seedFile
		}
		batch, err := leads.Resolve(file)
		if err != nil {
			return err
		}

		if seedDryRun {
			cfg.Sink.Driver = config.DriverMemory
		}
		pause := cfg.Seed.Pause
		if cmd.Flags().Changed("pause") {
			pause = seedPause
		}

		env, err := initSeed(ctx, seedMigrate)
		if err != nil {
			return err
		}
		defer env.Close()

		s := seeder.New(env.Sink, env.Geocoder,
			seeder.WithPause(pause),
			seeder.WithGeocodeTimeout(cfg.Geocode.Timeout),
			seeder.WithLimit(seedLimit),
			seeder.WithReport(cmd.OutOrStdout()),
		)

		summary := s.Run(ctx, batch)

		if summary.Interrupted {
			zap.L().Warn("seed run interrupted, rerun to resume",
				zap.String("run_id", summary.RunID),
				zap.Int("processed", summary.Total),
				zap.Int("leads", len(batch)),
			)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "lead file (.yaml, .csv, .xlsx); default from config, else the built-in leads")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "geocode into an in-memory sink, write nothing")
	seedCmd.Flags().DurationVar(&seedPause, "pause", seeder.DefaultPause, "pause between leads (default from config)")
	seedCmd.Flags().IntVar(&seedLimit, "limit", 0, "max leads to process (0 = all)")
	seedCmd.Flags().BoolVar(&seedMigrate, "migrate", false, "apply the sink schema before seeding")
	rootCmd.AddCommand(seedCmd)
}
