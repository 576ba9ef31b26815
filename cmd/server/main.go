// Package main is the entry point for the ADAT assessment API. One binary
// runs the gateway with in-process workers (serve), standalone workers
// (worker), schema migrations (migrate) and task inspection (task get).
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/adat-tool/adat-api/internal/config"
	"github.com/adat-tool/adat-api/internal/platform/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	configFile string
	logOut     io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

// newRootCmd builds the command tree. Structured logs go to logOut.
func newRootCmd(logOut io.Writer) *cobra.Command {
	c := &cli{logOut: logOut}

	root := &cobra.Command{
		Use:   "adat-api",
		Short: "Affordable housing development assessment API",
		Long: `adat-api accepts housing development assessments, queues them for
asynchronous evaluation against the 30% affordability rule and stores the
result per session.

Configuration comes from ADAT_* environment variables (for example
ADAT_QUEUE_DRIVER, ADAT_STORE_URL, ADAT_TASK_PROCESSING_TIMEOUT) and an
optional config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "config file (yaml, json or toml)")

	root.AddCommand(c.serveCmd())
	root.AddCommand(c.workerCmd())
	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.taskCmd())
	return root
}

// loadConfig reads configuration and sets up logging. Missing required
// settings abort startup.
func (c *cli) loadConfig() error {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c.cfg = cfg
	c.logger = logger.SetupWithWriter(c.logOut, cfg.Server.LogLevel)

	c.logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue_driver", cfg.Queue.Driver,
		"store_driver", cfg.Store.Driver)
	return nil
}
