package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/ratelimit"
	"github.com/knowflow/knowflow/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the HTTP server exposing prompt submission, plan listing,
health, and metrics endpoints. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		var limiter *ratelimit.Limiter
		if cfg.Server.RateLimit > 0 {
			limiter = ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
		}

		srv := server.New(rt.orch, rt.gateway, rt.logger, server.Options{
			AuthToken: cfg.Server.AuthToken,
			Limiter:   limiter,
			Registry:  rt.registry,
		})

		errCh := make(chan error, 1)
		go func() {
			rt.logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
			errCh <- srv.Start(cfg.Server.Addr)
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			rt.logger.Info("shutting down", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}
