// Package main is the entry point for the Alexander Assets database migration tool.
// This tool applies the embedded schema migrations for SQLite and PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

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

var configPath string

var rootCmd = &cobra.Command{
	Use:           "alexander-migrate",
	Short:         "Alexander Assets migration tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(db *app.Database) error {
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			version, err := db.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Database (%s) is at version %d\n", db.Driver, version)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current migration status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(db *app.Database) error {
			version, err := db.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Database (%s) is at version %d\n", db.Driver, version)
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Alexander Assets Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	rootCmd.AddCommand(upCmd, statusCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func withDatabase(ctx context.Context, fn func(*app.Database) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := app.OpenDatabase(ctx, cfg.Database, app.NewLogger(cfg.Logging))
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}
