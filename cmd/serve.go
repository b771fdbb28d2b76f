package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/abhisek/assessgen/internal/metrics"
	"github.com/abhisek/assessgen/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			e.cfg.Server.Addr = addr
		}
		if err := e.cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := metrics.New()
		svc, err := e.service(ctx, m)
		if err != nil {
			return err
		}

		srv := server.New(svc, server.Options{
			Mode:    e.cfg.Server.Mode,
			Metrics: m,
			Store:   e.store,
			Log:     e.log.Named("http"),
		})

		e.log.Info("starting assessgen",
			zap.String("version", version),
			zap.String("provider", e.cfg.LLM.Provider),
			zap.String("store", e.cfg.Store.Driver),
			zap.String("mode", e.cfg.Server.Mode))
		return srv.Run(ctx, e.cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
