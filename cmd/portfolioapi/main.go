package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/portfolioapi/internal/config"
)

const (
	appName = "portfolioapi"
	version = "v1.4.0"
)

// activeConfig is loaded once before any subcommand runs.
var activeConfig *config.Config

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Portfolio analytics API",
		Version: version,
		Long: `Portfolio analytics service.

Compares an equal-weighted portfolio of up to five tickers against a
benchmark (CAGR, max drawdown, Sharpe, volatility) and serves the charts
behind it. Upstream market data calls share one rate budget across every
process through Redis.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log)
			activeConfig = cfg
			return nil
		},
	}
	config.BindFlags(rootCmd.PersistentFlags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Starts the HTTP server with /api/portfolio/analyze, /health, /metrics and the internal stats endpoints",
		RunE:  runServe,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze TICKER [TICKER...]",
		Short: "Run one analysis and print the JSON result",
		Args:  cobra.RangeArgs(1, 5),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().String("period", "", "data period (defaults to analysis.default_period)")
	analyzeCmd.Flags().String("start-date", "", "analyse from this date (YYYY-MM-DD)")
	analyzeCmd.Flags().Bool("compact", false, "print JSON on one line")

	limitsCmd := &cobra.Command{
		Use:   "limits",
		Short: "Show rate limiter windows",
		Long:  "Shows the shared provider budget and, optionally, one caller's window without consuming a slot",
		RunE:  runLimits,
	}
	limitsCmd.Flags().String("caller", "", "client IP whose caller window to show")

	rootCmd.AddCommand(serveCmd, analyzeCmd, limitsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the YAML file named by --config, applies environment and
// flag overrides and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyFlags(cfg, cmd.Flags())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging writes console output on a terminal and JSON otherwise.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := term.IsTerminal(int(os.Stderr.Fd()))
	switch strings.ToLower(cfg.Format) {
	case "json":
		console = false
	case "console":
		console = true
	}

	if console {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", appName).Logger()
	}
}
