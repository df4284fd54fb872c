package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fhirsearch/internal/config"
	"github.com/ehr/fhirsearch/internal/platform/db"
	"github.com/ehr/fhirsearch/internal/platform/middleware"
	"github.com/ehr/fhirsearch/internal/platform/openapi"
	"github.com/ehr/fhirsearch/internal/platform/search"
	"github.com/ehr/fhirsearch/internal/platform/search/sqlgen"
	"github.com/ehr/fhirsearch/internal/platform/telemetry"
	"github.com/ehr/fhirsearch/pkg/expression"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "fhirsearch",
		Short:         "FHIR search expression service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(formatCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the search API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.HasDatabase() {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, db.Migrations()))
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func explainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <file.json>",
		Short: "Print the canonical, flattened and SQL forms of an expression document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resourceType, _ := cmd.Flags().GetString("resource-type")
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return runExplain(cmd.Context(), cmd.OutOrStdout(), data, resourceType)
		},
	}
	cmd.Flags().String("resource-type", "", "Resource type whose table the expression runs against")
	_ = cmd.MarkFlagRequired("resource-type")
	return cmd
}

func formatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <file.json>",
		Short: "Print the canonical form of an expression document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return runFormat(cmd.OutOrStdout(), data)
		},
	}
}

// offlineService builds an explain-only service from the configured limits.
func offlineService() (*search.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return search.NewService(serviceConfig(cfg), sqlgen.NewTranslator(sqlgen.DefaultSchema()), nil, zerolog.Nop())
}

func serviceConfig(cfg *config.Config) search.Config {
	return search.Config{
		MaxExpressionDepth: cfg.MaxExpressionDepth,
		MaxChainDepth:      cfg.MaxChainDepth,
		CacheSize:          cfg.CacheSize,
		DefaultPageSize:    cfg.DefaultPageSize,
	}
}

func runExplain(ctx context.Context, w io.Writer, data []byte, resourceType string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := expression.Unmarshal(data, expression.DefaultParameterRegistry())
	if err != nil {
		return err
	}
	svc, err := offlineService()
	if err != nil {
		return err
	}
	exp, err := svc.Explain(ctx, resourceType, e)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func runFormat(w io.Writer, data []byte) error {
	e, err := expression.Unmarshal(data, expression.DefaultParameterRegistry())
	if err != nil {
		return err
	}
	s, err := expression.Format(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

// connect returns a nil pool when no database is configured.
func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if !cfg.HasDatabase() {
		return nil, nil
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if lvl, err := cfg.Level(); err == nil {
		logger = logger.Level(lvl)
	}
	return logger
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Telemetry
	tp, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceVersion: version,
		Environment:    cfg.Env,
		Exporter:       cfg.TelemetryExporter,
		SampleRate:     cfg.TraceSampleRate,
	}, os.Stdout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up telemetry")
	}

	// Database
	var searcher search.Searcher
	pool, err := connect(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if pool != nil {
		defer pool.Close()
		searcher = sqlgen.NewRepository(pool)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, serving $explain and $format only")
	}

	schema := sqlgen.DefaultSchema()
	svc, err := search.NewService(serviceConfig(cfg), sqlgen.NewTranslator(schema), searcher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create search service")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("1M"))

	e.GET("/health", db.HealthHandler(pool))
	api := e.Group("/fhir")
	search.NewHandler(svc, expression.DefaultParameterRegistry()).RegisterRoutes(api)
	openapi.NewGenerator(schema, version, "/fhir").RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("search", svc.CanSearch()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
