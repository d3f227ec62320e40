package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/portfolioapi/internal/net/ratelimit"
)

type limitsReport struct {
	Store   string             `json:"store"`
	Windows []ratelimit.Status `json:"windows"`
}

// runLimits prints the provider budget and optional caller window.
func runLimits(cmd *cobra.Command, args []string) error {
	cfg := activeConfig
	caller, _ := cmd.Flags().GetString("caller")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report := limitsReport{Store: "memory"}
	if a.redis != nil {
		report.Store = "redis"
	}

	st, err := a.limiter.Status(ctx, cfg.Provider.BudgetKey, cfg.Provider.BudgetLimit, cfg.Provider.BudgetWindow)
	if err != nil {
		return fmt.Errorf("read provider budget: %w", err)
	}
	report.Windows = append(report.Windows, st)

	if caller != "" {
		key := cfg.CallerLimit.KeyPrefix + ":" + caller
		st, err := a.limiter.Status(ctx, key, cfg.CallerLimit.Limit, cfg.CallerLimit.Window)
		if err != nil {
			return fmt.Errorf("read caller window: %w", err)
		}
		report.Windows = append(report.Windows, st)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
