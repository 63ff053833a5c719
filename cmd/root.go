package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tlpi-group/marketing-cli/internal/config"
	"github.com/tlpi-group/marketing-cli/pkg/hubspot"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "marketing-cli",
	Short: "Marketing attribution ETL and weekly report pipeline",
	Long:  "Syncs CRM leads, contacts, and deals into Postgres, attributes them to campaigns, and narrates a weekly boardroom report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// dbPool creates a pgxpool.Pool from the configured store URL.
func dbPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}
	return pool, nil
}

// hubClient creates a HubSpot client from the configured token.
func hubClient() (hubspot.Client, error) {
	if err := cfg.Validate("hubspot"); err != nil {
		return nil, err
	}

	opts := []hubspot.Option{}
	if cfg.HubSpot.BaseURL != "" {
		opts = append(opts, hubspot.WithBaseURL(cfg.HubSpot.BaseURL))
	}
	if cfg.HubSpot.RateLimit > 0 {
		opts = append(opts, hubspot.WithRateLimit(cfg.HubSpot.RateLimit))
	}
	return hubspot.NewClient(cfg.HubSpot.Token, opts...), nil
}
