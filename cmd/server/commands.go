package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/platform/sqlstore"
	"github.com/adat-tool/adat-api/internal/task"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var (
		noWorkers bool
		migrate   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway with in-process workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, c.cfg, c.logger, nil, appOptions{
				Workers: !noWorkers,
				Migrate: migrate,
			})
			if err != nil {
				return err
			}
			defer app.cleanup()

			if app.pool != nil {
				app.pool.Start()
			}
			return app.startHTTPServer(ctx, app.setupRouter())
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve the gateway only; run workers with the worker command")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func (c *cli) workerCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run standalone workers against a durable queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Queue.Driver == driverMemory {
				return errors.New("worker requires a durable queue driver (postgres or sqlite)")
			}
			if c.cfg.Store.Driver == driverMemory {
				c.logger.Warn("results written by this worker are not visible to other processes",
					"store_driver", c.cfg.Store.Driver)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, c.cfg, c.logger, nil, appOptions{Migrate: migrate})
			if err != nil {
				return err
			}
			defer app.cleanup()

			hostname, err := os.Hostname()
			if err != nil || hostname == "" {
				hostname = "worker"
			}
			app.pool = app.newWorkerPool(nil, hostname)
			app.pool.Start()

			<-ctx.Done()
			c.logger.Info("worker shutting down")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|status|version>",
		Short:     "Run database migrations for the SQL queue and result store",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{sqlstore.MigrateUp, sqlstore.MigrateDown, sqlstore.MigrateStatus, sqlstore.MigrateVersion},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runMigrations(cmd.Context(), args[0])
		},
	}
}

// runMigrations applies command to every distinct SQL backend configured.
func (c *cli) runMigrations(ctx context.Context, command string) error {
	app := &application{
		config: c.cfg,
		logger: c.logger,
		clock:  clock.Real(),
		dbs:    make(map[string]*sqlstore.DB),
	}
	defer func() {
		for _, db := range app.dbs {
			_ = db.Close()
		}
	}()

	targets := [][2]string{
		{c.cfg.Queue.Driver, c.cfg.Queue.URL},
		{c.cfg.Store.Driver, c.cfg.Store.URL},
	}
	ran := 0
	for _, t := range targets {
		driver, url := t[0], t[1]
		if _, err := sqlstore.ParseDialect(driver); err != nil {
			continue
		}
		if _, seen := app.dbs[driver+"|"+url]; seen {
			continue
		}
		db, err := app.openDB(ctx, driver, url, false)
		if err != nil {
			return err
		}
		if err := sqlstore.Migrate(ctx, db, command, c.logger); err != nil {
			return err
		}
		ran++
	}
	if ran == 0 {
		c.logger.Warn("no SQL backend configured, nothing to migrate")
	}
	return nil
}

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect queued tasks",
	}
	cmd.AddCommand(c.taskGetCmd())
	return cmd
}

func (c *cli) taskGetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Queue.Driver == driverMemory {
				return errors.New("task get requires a durable queue driver (postgres or sqlite)")
			}
			app := &application{
				config: c.cfg,
				logger: c.logger,
				clock:  clock.Real(),
				dbs:    make(map[string]*sqlstore.DB),
			}
			defer func() {
				for _, db := range app.dbs {
					_ = db.Close()
				}
			}()
			if err := app.openTaskStore(cmd.Context(), false); err != nil {
				return err
			}

			rec, err := task.NewQueue(app.taskStore, app.clock, c.logger).GetStateByString(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("task %s: %w", args[0], err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			printTask(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTask(w io.Writer, rec *task.Record) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"ID", rec.ID},
		{"Type", rec.Type},
		{"Session", rec.SessionID},
		{"Status", rec.Status},
		{"Attempts", rec.Attempts},
		{"Worker", rec.WorkerID},
		{"Created", formatTime(&rec.CreatedAt)},
		{"Updated", formatTime(&rec.UpdatedAt)},
		{"Lease expires", formatTime(rec.LeaseExpiresAt)},
		{"Finished", formatTime(rec.FinishedAt)},
		{"Expires", formatTime(rec.ExpiresAt)},
	})
	if rec.Error != "" {
		tw.AppendRow(table.Row{"Error", rec.Error})
	}
	if len(rec.Result) > 0 {
		tw.AppendRow(table.Row{"Result", string(rec.Result)})
	}
	tw.Render()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
