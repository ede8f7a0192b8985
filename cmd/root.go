package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mts/internal/cache"
	"mts/internal/config"
	"mts/internal/errors"
	"mts/internal/log"
	"mts/internal/utils"
)

var (
	configPath string
	cacheDir   string
	logLevel   string
	noPersist  bool

	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "mts",
	Short: "medieteknik.com search and cache tool",
	Long: `MTS queries the medieteknik.com search backend and keeps a local cache of
results so repeated searches are answered without a network round trip.

The cache is best-effort: when the cache directory is unavailable every
search still goes to the backend.

Common usage:
  mts search "styrelsemöte"                 # Search, using cached results when fresh
  mts search --filter type=news "sittning"  # Search with a backend filter
  mts search --no-cache "val"               # Always ask the backend
  mts cache list                            # Show cached entries and their ages
  mts browse                                # Explore the cache interactively

Configuration is read from $XDG_CONFIG_HOME/mts/config.yaml or --config.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cacheDir != "" {
			loaded.Cache.Dir = cacheDir
		}

		level := logLevel
		if level == "" {
			level = loaded.Log.Level
		}
		if err := log.InitLogger(level); err != nil {
			return err
		}

		cfg = loaded
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/mts/config.yaml)")
	flags.StringVar(&cacheDir, "cache-dir", "", "Cache directory (default $MTS_CACHE_DIR or $XDG_CACHE_HOME/mts)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&noPersist, "no-persist", false, "Keep the cache in memory for this run only")
}

// openCache returns the cache configured by flags and config file.
func openCache() *cache.Cache {
	return utils.NewCache(cfg, noPersist)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", appErr.UserFriendlyMessage())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
