package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the lookup cache",
	}
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

func newCachePurgeCmd() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached lookup entries matching a glob pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadEnvConfig()
			if strings.ToLower(cfg.CacheDriver) == "memory" {
				return fmt.Errorf("cache purge needs a shared backend, set AETHER_CACHE=redis")
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			gateway, err := cfg.openCache(logger)
			if err != nil {
				return err
			}
			n := gateway.Invalidate(cmd.Context(), pattern)
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "*", "glob pattern of cache keys to delete")
	return cmd
}
