package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/trackline/server/internal/storage/postgres"
)

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Manage webhook event subscriptions",
}

var subscriptionsAddCmd = &cobra.Command{
	Use:   "add <exchange> <binding-key> <endpoint>",
	Short: "Register a webhook endpoint for an exchange and binding key",
	Long: `Register a webhook endpoint. The binding key uses topic semantics:
'*' matches exactly one word, '#' matches zero or more.

Examples:
  trackline subscriptions add news 'news.issue.*' https://hooks.example.com/issues
  trackline subscriptions add direct-exchange project.issue.created https://hooks.example.com/created`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		repo, err := postgres.NewRepository(pool)
		if err != nil {
			return err
		}

		sub, err := repo.Subscriptions().(*postgres.SubscriptionRepository).Create(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "subscription %s created\n", sub.ID)
		return nil
	},
}

var subscriptionsListCmd = &cobra.Command{
	Use:   "list <exchange>",
	Short: "List enabled subscriptions for an exchange",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		repo, err := postgres.NewRepository(pool)
		if err != nil {
			return err
		}

		subs, err := repo.Subscriptions().ListForExchange(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, sub := range subs {
			fmt.Fprintf(out, "%s  %-30s  %s\n", sub.ID, sub.BindingKey, sub.Endpoint)
		}
		return nil
	},
}

func init() {
	subscriptionsCmd.AddCommand(subscriptionsAddCmd)
	subscriptionsCmd.AddCommand(subscriptionsListCmd)
}
