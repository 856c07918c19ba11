package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cellule-dashboard/cellule"
	"cellule-dashboard/internal/config"
	"cellule-dashboard/internal/logger"
	"cellule-dashboard/internal/server"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	mgr *cellule.CellManager
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var dbPath, logLevel string

	root := &cobra.Command{
		Use:          "cellule",
		Short:        "Cell dashboard: members, attendance and prayer requests",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			a.cfg = cfg
			a.log = logger.New(cfg.LogLevel)

			a.mgr, err = cellule.NewCellManager(cfg.DatabasePath, a.log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.mgr != nil {
				a.mgr.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), a.mgr, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database file (default $CELLULE_DB_PATH or "+config.DefaultDatabasePath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default $LOG_LEVEL or info)")

	root.AddCommand(newServeCmd(a), newExportCmd(a), newResetCmd(a), newStatsCmd(a))
	return root
}

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:    a.cfg.Addr(),
				Handler: server.New(a.mgr, a.log).Handler(),
			}
			errCh := make(chan error, 1)
			go func() {
				a.log.WithField("addr", srv.Addr).Info("dashboard listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or "+config.DefaultPort+")")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out, table string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all data as a zip of CSV files, or one table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if table != "" {
				return exportTable(ctx, a.mgr, table, out)
			}
			if out == "" {
				out = a.cfg.ArchivePath
			}
			if err := a.mgr.ExportAllToFile(ctx, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file (default $CELLULE_ARCHIVE_PATH, or stdout with --table)")
	cmd.Flags().StringVar(&table, "table", "", "export a single table: members, attendance or prayers")
	return cmd
}

func exportTable(ctx context.Context, mgr *cellule.CellManager, name, out string) error {
	t, err := mgr.Table(ctx, name)
	if err != nil {
		return err
	}
	if out == "" {
		return cellule.ToCSV(os.Stdout, t)
	}
	data, err := cellule.CSVBytes(t)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func newResetCmd(a *app) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete ALL members, attendance and prayer requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !cmd.Flags().Changed("confirm") {
				fmt.Fprintf(out, "Type '%s' to wipe the database: ", cellule.ResetConfirmation)
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					confirm = sc.Text()
				}
			}
			done, err := a.mgr.ResetDatabase(cmd.Context(), confirm)
			if err != nil {
				return err
			}
			if !done {
				fmt.Fprintln(out, "Reset not confirmed. Nothing was changed.")
				return nil
			}
			fmt.Fprintln(out, "Database reset.")
			return nil
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "confirmation token, skips the prompt")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the overview and the attendance trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := printOverview(cmd.Context(), out, a.mgr); err != nil {
				return err
			}
			fmt.Fprintln(out)
			return printDailyRates(cmd.Context(), out, a.mgr)
		},
	}
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return s[:maxLength]
	}
	return s[:maxLength-3] + "..."
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
