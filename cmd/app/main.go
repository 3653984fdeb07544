package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"

	"github.com/maloquacious/taskflow/internal/api"
	"github.com/maloquacious/taskflow/internal/app"
	"github.com/maloquacious/taskflow/internal/config"
	"github.com/maloquacious/taskflow/internal/logger"
	"github.com/maloquacious/taskflow/internal/schema"
	"github.com/maloquacious/taskflow/internal/store"
	"github.com/maloquacious/taskflow/internal/store/sqlite"
)

var (
	version   = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

var (
	cfgFile    string
	dbPath     string
	logLevel   string
	port       int
	shutdownTO time.Duration
	exitAfter  time.Duration
	upgradeTo  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "app",
		Short:        "Taskflow datastore server and admin CLI",
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: taskflow.yaml in the user config dir or .)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides database.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Migrate the datastore and serve the JSON API on loopback",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "API port on 127.0.0.1 (default: server.port)")
	serveCmd.Flags().DurationVar(&shutdownTO, "shutdown-timeout", 0, "graceful shutdown timeout (default: server.shutdown_timeout)")
	serveCmd.Flags().DurationVar(&exitAfter, "exit-after", 0, "optional runtime; if set, server exits after this duration (testing)")

	// db command group
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	dbCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create the datastore and apply every migration",
		RunE:  runDBCreate,
	}
	dbUpgradeCmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Apply pending migrations",
		RunE:  runDBUpgrade,
	}
	dbUpgradeCmd.Flags().IntVar(&upgradeTo, "to", 0, "stop after this schema version (default: latest)")
	dbVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify schema integrity and version; prints a JSON report",
		RunE:  runDBVerify,
	}
	dbStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE:  runDBStatus,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build and schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("taskflow %s (schema %d)\n", version.String(), schema.Latest(schema.Migrations()))
			return nil
		},
	}

	dbCmd.AddCommand(dbCreateCmd, dbUpgradeCmd, dbVerifyCmd, dbStatusCmd)
	rootCmd.AddCommand(serveCmd, dbCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies command line overrides on top of the loaded configuration.
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(os.Stderr, level), nil
}

// runServe migrates the datastore, then serves the API until signalled.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if shutdownTO != 0 {
		cfg.Server.ShutdownTimeout = shutdownTO
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// startup failure is fatal; no listener is created until migration succeeds
	a, err := app.Initialize(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}
	defer func() {
		if err := a.Shutdown(); err != nil {
			log.Error("close database", "error", err)
		}
	}()
	log = a.Logger()

	srv := api.NewServer(a.Store(), api.BuildInfo{
		Version:      version.String(),
		BuildDate:    buildDate,
		InstanceID:   a.InstanceID(),
		LatestSchema: schema.Latest(schema.Migrations()),
	}, log)

	// Bind to 127.0.0.1 only (loopback enforcement)
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listener bind failed (loopback only): %w", err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", listener.Addr().String())
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Optional run timer
	if exitAfter > 0 {
		log.Info("exit-after timer set", "after", exitAfter)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exitAfter)
		defer cancel()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		// graceful shutdown
	case serveErr = <-errCh:
		log.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	log.Info("shutdown complete")
	return serveErr
}

// openStore opens an existing datastore without migrating it.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*sqlite.SQLiteStore, error) {
	path := app.DBPath(cfg)
	exists, err := store.CheckExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("database %s does not exist (run db create)", path)
	}
	s := sqlite.New(path, schema.Migrations(),
		sqlite.WithBusyTimeout(cfg.Database.BusyTimeout()),
		sqlite.WithLogger(log),
	)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func runDBCreate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	return dbCreate(cmd.Context(), cfg, log, cmd.OutOrStdout())
}

func runDBUpgrade(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	return dbUpgrade(cmd.Context(), cfg, log, cmd.OutOrStdout(), upgradeTo)
}

func runDBVerify(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	return dbVerify(cmd.Context(), cfg, log, cmd.OutOrStdout())
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	return dbStatus(cmd.Context(), cfg, log, cmd.OutOrStdout())
}

// dbCreate creates the file and applies every migration. An existing file is an error.
func dbCreate(ctx context.Context, cfg *config.Config, log logger.Logger, w io.Writer) error {
	path := app.DBPath(cfg)
	exists, err := store.CheckExists(path)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("database %s already exists", path)
	}

	a, err := app.Initialize(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.Shutdown(); err != nil {
		return err
	}
	fmt.Fprintf(w, "created %s at schema version %d\n", path, schema.Latest(schema.Migrations()))
	return nil
}

// dbUpgrade applies pending migrations, stopping after version to when it is positive.
func dbUpgrade(ctx context.Context, cfg *config.Config, log logger.Logger, w io.Writer, to int) error {
	s, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	var ran []int
	if to > 0 {
		ran, err = s.MigrateTo(ctx, to)
	} else {
		ran, err = s.Migrate(ctx)
	}
	for _, v := range ran {
		fmt.Fprintf(w, "applied migration %d\n", v)
	}
	if err != nil {
		return err
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if len(ran) == 0 {
		fmt.Fprintf(w, "already at schema version %d\n", current)
		return nil
	}
	fmt.Fprintf(w, "schema version %d\n", current)
	return nil
}

// dbVerify writes a JSON report and fails unless the datastore is ready.
func dbVerify(ctx context.Context, cfg *config.Config, log logger.Logger, w io.Writer) error {
	path := app.DBPath(cfg)
	report := store.Report{
		Path:          path,
		State:         store.StateMissing.String(),
		LatestVersion: schema.Latest(schema.Migrations()),
	}
	exists, err := store.CheckExists(path)
	if err != nil {
		return err
	}
	if exists {
		s, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer s.Close()
		if report, err = s.Verify(ctx); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.State != store.StateReady.String() {
		return fmt.Errorf("database not ready: %s", report.State)
	}
	return nil
}

// dbStatus lists applied migrations, then pending ones.
func dbStatus(ctx context.Context, cfg *config.Config, log logger.Logger, w io.Writer) error {
	s, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	registry := schema.Migrations()

	fmt.Fprintf(w, "database: %s\n", s.Path())
	fmt.Fprintf(w, "schema version: %d of %d\n", current, schema.Latest(registry))
	for _, m := range applied {
		fmt.Fprintf(w, "  [x] %3d %-28s %s\n", m.Version, m.Description, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range schema.Pending(registry, current) {
		fmt.Fprintf(w, "  [ ] %3d %s\n", m.Version, m.Description)
	}
	return nil
}
