// qcache is a diagnostic CLI for a shared query-cache tier: inspect
// statistics, invalidate keys by pattern, or clear everything.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailscope/querycache/cache"
	"github.com/mailscope/querycache/logger"
)

var (
	host       string
	port       int
	db         int
	password   string
	prefix     string
	policyFile string
)

func connect(ctx context.Context, log logger.Logger) (*cache.TieredCache, error) {
	var opts []cache.Option
	if prefix != "" {
		opts = append(opts, cache.WithPrefix(prefix))
	}
	tier2, err := cache.DialRedis(ctx, cache.RedisConfig{
		Host:     host,
		Port:     port,
		DB:       db,
		Password: password,
	}, log, opts...)
	if err != nil {
		return nil, err
	}
	policy := cache.DefaultPolicy()
	if policyFile != "" {
		if policy, err = cache.LoadPolicy(policyFile); err != nil {
			return nil, err
		}
	}
	tier1 := cache.NewMemory(ctx, 1000, cache.WithSweepInterval(time.Minute))
	return cache.NewTiered(tier1, tier2, policy, log), nil
}

func main() {
	log := logger.NewConsoleLogger()

	rootCmd := &cobra.Command{
		Use:           "qcache",
		Short:         "Inspect and manage a shared query-result cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&host, "host", "localhost", "Redis host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 6379, "Redis port")
	rootCmd.PersistentFlags().IntVar(&db, "db", 0, "Redis logical database")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Redis password")
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", "", "key prefix namespacing this cache")
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "YAML category policy file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := connect(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer tc.Close()
			buf, err := json.MarshalIndent(tc.Statistics(cmd.Context()), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(buf))
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "invalidate <pattern>",
		Short: "Delete every key matching a glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := connect(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer tc.Close()
			n := tc.InvalidatePattern(cmd.Context(), args[0])
			fmt.Printf("invalidated %d keys\n", n)
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := connect(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer tc.Close()
			tc.ClearAll(cmd.Context())
			fmt.Println("cache cleared")
			return nil
		},
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}
