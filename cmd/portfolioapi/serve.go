package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/sawpanic/portfolioapi/internal/interfaces/http"
	"github.com/sawpanic/portfolioapi/internal/interfaces/http/handlers"
)

// runServe starts the API server and blocks until SIGINT/SIGTERM
func runServe(cmd *cobra.Command, args []string) error {
	cfg := activeConfig

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := handlers.Deps{
		Engine:   a.engine,
		Limiter:  a.limiter,
		Audit:    a.db.Audit(),
		Upstream: a.market,
	}
	if a.redis != nil {
		deps.Redis = a.redis
	}
	if a.db.IsEnabled() {
		deps.Database = a.db.Health()
	}

	h := handlers.NewHandlers(handlers.Config{
		Version:         version,
		DefaultPeriod:   cfg.Analysis.DefaultPeriod,
		AllowedPeriods:  cfg.Analysis.AllowedPeriods,
		MaxTickers:      cfg.Analysis.MaxTickers,
		CallerKeyPrefix: cfg.CallerLimit.KeyPrefix,
		CallerLimit:     cfg.CallerLimit.Limit,
		CallerWindow:    cfg.CallerLimit.Window,
		InternalAPIKey:  cfg.Server.InternalAPIKey,
	}, deps)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    120 * time.Second,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, h, a.metrics)

	serverErr := make(chan error, 1)
	go func() {
		addr := server.GetAddress()
		log.Info().
			Str("analyze", fmt.Sprintf("http://%s/api/portfolio/analyze?stocks=AAPL,MSFT", addr)).
			Str("health", fmt.Sprintf("http://%s/health", addr)).
			Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
			Bool("redis", cfg.Redis.Enabled).
			Bool("database", cfg.Database.Enabled).
			Msg("API endpoints available")

		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}
