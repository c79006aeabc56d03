/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the plan assignment engine.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve   HTTP API plus the periodic expiry scheduler (default)
  reap    One reaper activation, then exit (cron-friendly)

STARTUP SEQUENCE (serve):
  1. Load PLAN_ENGINE_* environment, apply flag overrides
  2. Open the configured store and reaper lock
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start scheduler and server with graceful shutdown

FLAGS:
  --port    HTTP server port (overrides PLAN_ENGINE_PORT)
  --store   memory | sqlite | postgres (overrides PLAN_ENGINE_STORE)
  --db      SQLite database path (overrides PLAN_ENGINE_SQLITE_PATH)
            Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight activation)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close store and lock connections

EXAMPLES:
  ./server serve --db="./data/plans.db"
  PLAN_ENGINE_STORE=postgres PLAN_ENGINE_POSTGRES_DSN=postgres://... ./server serve
  ./server reap --store=sqlite --db=./data/plans.db

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tohka53/gtrehabiMovement/api"
	"github.com/tohka53/gtrehabiMovement/assignment"
	"github.com/tohka53/gtrehabiMovement/config"
	"github.com/tohka53/gtrehabiMovement/logger"
)

// Flag overrides
var (
	flagPort  int
	flagStore string
	flagDB    string
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Batch plan assignment and progress engine",
	Long: `Assigns plans to groups of recipients, tracks each recipient's progress
and retires assignments whose window has elapsed.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the expiry scheduler",
	RunE:  runServe,
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Expire every active assignment whose window has ended, then exit",
	RunE:  runReap,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "HTTP server port")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "store driver: memory, sqlite, postgres")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path")

	rootCmd.AddCommand(serveCmd, reapCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagStore != "" {
		cfg.StoreDriver = flagStore
	}
	if flagDB != "" {
		cfg.SQLitePath = flagDB
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	deps, err := wire(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	handler := api.NewHandler(deps.Store, deps.Authorizer, deps.Locker, assignment.SystemClock{}, log)
	handler.DefaultDurationDays = cfg.DefaultDurationDays
	handler.ScenariosEnabled = cfg.Scenarios

	scheduler := api.NewExpiryScheduler(handler.Reaper, log)
	scheduler.CheckInterval = cfg.ReapInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Addr(), "store", cfg.StoreDriver,
			"strategy", deps.Store.CreationStrategy().String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func runReap(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	deps, err := wire(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	reaper := assignment.NewReaper(deps.Store, assignment.SystemClock{}, deps.Locker, log)
	n := reaper.Activate(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "expired %d assignment(s)\n", n)
	return nil
}
