package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sawpanic/portfolioapi/internal/application/portfolio"
	"github.com/sawpanic/portfolioapi/internal/interfaces/http/handlers"
)

// runAnalyze runs one analysis through the same limiter and cache the
// server uses and prints the result.
func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := activeConfig
	period, _ := cmd.Flags().GetString("period")
	startDate, _ := cmd.Flags().GetString("start-date")
	compact, _ := cmd.Flags().GetBool("compact")

	if period != "" && !cfg.PeriodAllowed(period) {
		return fmt.Errorf("unsupported period %q (allowed: %v)", period, cfg.Analysis.AllowedPeriods)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Server.RequestTimeout)
		defer cancel()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var tickers []string
	for _, arg := range args {
		tickers = append(tickers, handlers.ParseTickers(arg)...)
	}
	if len(tickers) > cfg.Analysis.MaxTickers {
		return fmt.Errorf("maximum %d stocks allowed", cfg.Analysis.MaxTickers)
	}

	res, err := a.engine.Analyze(ctx, portfolio.Request{
		Tickers:   tickers,
		Period:    period,
		StartDate: startDate,
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}
