// Command migrate manages the billing schema and runs one-off billing repairs.
package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/vetclinic/backend/internal/infrastructure/config"
	"github.com/vetclinic/backend/internal/infrastructure/logger"
	"github.com/vetclinic/backend/migrations"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "migrations"

var version = "dev"

// app carries state shared by every subcommand
type app struct {
	migrationsPath string
	logLevel       string
	envFile        string

	log *zap.Logger
}

// source returns the migrations to read: a directory when --path is set,
// otherwise the set compiled into the binary
func (a *app) source() fs.FS {
	if a.migrationsPath != "" {
		return os.DirFS(a.migrationsPath)
	}
	return migrations.FS
}

func (a *app) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(a.envFile); err != nil {
		return nil, err
	}
	return config.Load()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Billing database tool",
		Long:          "Apply schema migrations and run billing repairs.\n\nConfiguration is read from config.toml, the env file and VET_* environment variables.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(logger.Config{Level: a.logLevel, Format: "console", Output: "stdout"})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.migrationsPath, "path", "", "migrations directory (default: embedded set; create writes to ./migrations)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "env file loaded before configuration")

	root.AddCommand(schemaCommands(a)...)
	root.AddCommand(repairCommands(a)...)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}
