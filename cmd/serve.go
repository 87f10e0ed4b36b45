package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farm-seeder/internal/server"
	"github.com/sells-group/farm-seeder/internal/sink"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health probes and radius search over seeded farms",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		s, err := sink.Open(ctx, cfg.Sink)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if _, ok := s.(sink.Searcher); !ok {
			zap.L().Warn("sink does not support search, /api/farms/search will return 501",
				zap.String("driver", cfg.Sink.Driver))
		}

		srv := server.New(s,
			server.WithCORSOrigins(cfg.Server.CORSOrigins),
			server.WithRateLimit(cfg.Server.RateLimit),
		)
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
