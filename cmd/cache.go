package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"mts/internal/cache"
	"mts/internal/errors"
	"mts/internal/utils"
	"mts/internal/validation"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local result cache",
	Long: `Inspect and manage the local cache of search results.

Every cached value is stored next to the time it was written. Searches use
that time to decide whether a cached result is still fresh.`,
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a cached value",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheGet,
}

var cacheSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value and stamp it with the current time",
	Long: `Store a value under key. A value that parses as JSON is stored as is;
anything else is stored as a JSON string.`,
	Args: cobra.ExactArgs(2),
	RunE: runCacheSet,
}

var cacheTimestampCmd = &cobra.Command{
	Use:   "timestamp <key>",
	Short: "Show when a key was last written",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheTimestamp,
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a key and its timestamp",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheDelete,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached entries",
	Long:  `List every cached key with its size, write time and freshness status.`,
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  `Display information about the cache including size and entry counts.`,
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached data",
	Long:  `Remove all cached results. This will force fresh backend calls on next use.`,
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old cache entries",
	Long: `Remove entries written longer ago than --older-than, plus timestamps whose
value is gone, then reclaim disk space.`,
	Args: cobra.NoArgs,
	RunE: runCacheCleanup,
}

var (
	listFormat string
	olderThan  time.Duration
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheSetCmd)
	cacheCmd.AddCommand(cacheTimestampCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)

	cacheListCmd.Flags().StringVar(&listFormat, "format", "table", "Output format: table, json")
	cacheCleanupCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove entries older than this (default: cache.freshness)")
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := validation.ValidateKey(key); err != nil {
		return errors.WrapValidationError(err, key)
	}

	c := openCache()
	defer c.Close()

	value, ok := c.Get(cmd.Context(), key)
	if !ok {
		return fmt.Errorf("no cached value for %s", key)
	}

	fmt.Fprint(cmd.OutOrStdout(), string(pretty.Pretty(value)))
	return nil
}

func runCacheSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	if err := validation.ValidateKey(key); err != nil {
		return errors.WrapValidationError(err, key)
	}

	c := openCache()
	defer c.Close()

	ts, err := storeValue(cmd.Context(), c, key, raw, time.Now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s at %s\n", key, ts.Format(cache.TimestampLayout))
	return nil
}

// storeValue writes raw under key, as JSON when it parses, and returns the
// recorded write time. A timestamp older than the call means the write did
// not land and an earlier record is still in place.
func storeValue(ctx context.Context, c *cache.Cache, key, raw string, now func() time.Time) (time.Time, error) {
	var value any = raw
	if gjson.Valid(raw) {
		value = json.RawMessage(raw)
	}

	start := now().Truncate(time.Millisecond)
	c.Set(ctx, key, value)

	ts, ok := c.GetTimestamp(ctx, key)
	if !ok || ts.Before(start) {
		return time.Time{}, fmt.Errorf("value for %s was not stored; run with --log-level warn for details", key)
	}
	return ts, nil
}

func runCacheTimestamp(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := validation.ValidateKey(key); err != nil {
		return errors.WrapValidationError(err, key)
	}

	c := openCache()
	defer c.Close()

	ts, ok := c.GetTimestamp(cmd.Context(), key)
	if !ok {
		return fmt.Errorf("no timestamp recorded for %s", key)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", ts.Format(cache.TimestampLayout), utils.FormatAge(ts, time.Now()))
	return nil
}

func runCacheDelete(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := validation.ValidateKey(key); err != nil {
		return errors.WrapValidationError(err, key)
	}

	c := openCache()
	defer c.Close()

	if err := c.Delete(cmd.Context(), key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
	return nil
}

func runCacheList(cmd *cobra.Command, args []string) error {
	c := openCache()
	defer c.Close()

	entries, err := c.Entries(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch listFormat {
	case "json":
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(pretty.Pretty(data)))
	case "table":
		if len(entries) == 0 {
			fmt.Fprintln(out, "Cache is empty")
			return nil
		}
		renderEntriesTable(out, entries, time.Now(), cfg.Cache.Freshness)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", listFormat)
	}
	return nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c := openCache()
	defer c.Close()

	stats, err := c.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache Statistics:\n")
	fmt.Fprintf(out, "  Entries:           %s\n", utils.FormatCount(int(stats.Entries)))
	fmt.Fprintf(out, "  Timestamped:       %s\n", utils.FormatCount(int(stats.Timestamped)))
	fmt.Fprintf(out, "  Orphan timestamps: %s\n", utils.FormatCount(int(stats.OrphanTimestamps)))
	fmt.Fprintf(out, "  Database size:     %s\n", utils.FormatBytes(stats.SizeBytes))
	if !noPersist {
		if dir, err := cfg.CacheDir(); err == nil {
			fmt.Fprintf(out, "  Location:          %s\n", dir)
		}
	}

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c := openCache()
	defer c.Close()

	stats, err := c.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	if stats.Entries == 0 && stats.OrphanTimestamps == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Cache is already empty")
		return nil
	}

	if err := c.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries\n", stats.Entries)
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	age := olderThan
	if age <= 0 {
		age = cfg.Cache.Freshness
	}

	c := openCache()
	defer c.Close()

	before, err := c.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get cache stats: %w", err)
	}

	removed, err := c.Cleanup(cmd.Context(), age)
	if err != nil {
		return fmt.Errorf("failed to cleanup cache: %w", err)
	}

	if removed == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No old entries to clean up")
		return nil
	}

	after, err := c.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get cache stats after cleanup: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries older than %s\n", removed, age)
	if saved := before.SizeBytes - after.SizeBytes; saved > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Cache size reduced by %s\n", utils.FormatBytes(saved))
	}
	return nil
}
