package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/errmon/sentry-mcp/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local snapshot cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired issue snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl := time.Duration(viper.GetInt("cache.ttl_minutes")) * time.Minute
		store, err := cache.NewStore(viper.GetString("cache.path"), ttl, nil)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer store.Close()

		if err := store.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate cache: %w", err)
		}

		n, err := store.Purge(cmd.Context())
		if err != nil {
			return err
		}
		ui.Success("Purged %d expired snapshots", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
