// Package main is the entry point for the Alexander Assets admin CLI.
// This tool runs maintenance jobs and per-asset operations against the
// configured database and disks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-assets/internal/app"
	"github.com/prn-tf/alexander-assets/internal/config"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	dryRun     bool
	lockWait   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "alexander-admin",
	Short:         "Alexander Assets admin CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Alexander Assets Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "variations:cleanup",
	Short: "Remove variations that have not been used within the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		adjust := func(cfg *config.Config) {
			cfg.Cleanup.DryRun = cfg.Cleanup.DryRun || dryRun
			if lockWait > 0 {
				cfg.Cleanup.LockWait = lockWait
			}
		}
		return withApp(cmd.Context(), adjust, func(a *app.App) error {
			result := a.Cleanup.RunOnce(cmd.Context())
			if result.Skipped {
				fmt.Println("Cleanup is already running elsewhere, skipped.")
				return nil
			}
			fmt.Printf("Removed %d variations (%d errors) in %s.\n", result.Deleted, result.Errors, result.Duration)
			return nil
		})
	},
}

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Per-asset operations",
}

var moveDiskCmd = &cobra.Command{
	Use:   "move-disk <id> <disk>",
	Short: "Copy an asset's blob to another disk and repoint the record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(a *app.App) error {
			asset, err := a.Assets.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := a.Assets.MoveToDisk(cmd.Context(), asset, args[1]); err != nil {
				return err
			}
			fmt.Printf("Asset %d moved to %s:%s\n", asset.ID, asset.Disk, asset.Path)
			return nil
		})
	},
}

var refreshMetaCmd = &cobra.Command{
	Use:   "refresh-meta <id>",
	Short: "Re-read media metadata from the stored blob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(a *app.App) error {
			asset, err := a.Assets.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := a.Assets.RefreshMetaData(cmd.Context(), asset); err != nil {
				return err
			}
			fmt.Printf("Asset %d metadata: %v\n", asset.ID, asset.Metadata())
			return nil
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Recompute the content hash of an asset and compare it with the record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), nil, func(a *app.App) error {
			asset, err := a.Assets.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			exists, err := a.Assets.ExistsOnDisk(cmd.Context(), asset)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("asset %d: blob %s:%s is missing", asset.ID, asset.Disk, asset.Path)
			}

			hash, err := a.Assets.FreshHash(cmd.Context(), asset)
			if err != nil {
				return err
			}
			if hash != asset.Hash {
				return fmt.Errorf("asset %d: stored hash %s, blob hash %s", asset.ID, asset.Hash, hash)
			}
			fmt.Printf("Asset %d OK (%s)\n", asset.ID, hash)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	cleanupCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log what would be removed without deleting")
	cleanupCmd.Flags().DurationVar(&lockWait, "wait", 0, "wait this long for a running cleanup to finish instead of skipping")

	assetCmd.AddCommand(moveDiskCmd, refreshMetaCmd, verifyCmd)
	rootCmd.AddCommand(versionCmd, cleanupCmd, assetCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads configuration, applies adjust, and runs fn with the
// wired services.
func withApp(ctx context.Context, adjust func(*config.Config), fn func(*app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(cfg)
	}

	a, err := app.New(ctx, cfg, app.NewLogger(cfg.Logging), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid asset id %q", s)
	}
	return id, nil
}
