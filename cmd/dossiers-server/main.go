package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dossiers/dossiers/internal/config"
	"github.com/dossiers/dossiers/internal/domain/patient"
	"github.com/dossiers/dossiers/internal/platform/auth"
	"github.com/dossiers/dossiers/internal/platform/db"
	"github.com/dossiers/dossiers/internal/platform/middleware"
	"github.com/dossiers/dossiers/internal/platform/openapi"
	"github.com/dossiers/dossiers/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dossiers-server",
		Short: "Medical records administration API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(openapiCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(ctx context.Context, dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
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

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the patients collection configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			locale, _ := cmd.Flags().GetString("locale")

			d := patient.Collection().Describe(locale)
			var (
				out []byte
				err error
			)
			switch format {
			case "yaml":
				out, err = d.YAML()
			case "json":
				out, err = d.JSON()
			default:
				return fmt.Errorf("unknown format %q (want yaml or json)", format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml or json")
	cmd.Flags().String("locale", "fr", "Label locale: fr or en")
	return cmd
}

func openapiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document of the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _ := cmd.Flags().GetString("base-url")
			locale, _ := cmd.Flags().GetString("locale")

			doc := newAPIDoc(baseURL, locale).GenerateSpec()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	cmd.Flags().String("base-url", "http://localhost:8000/api/v1", "Server URL written in the document")
	cmd.Flags().String("locale", "fr", "Label locale: fr or en")
	return cmd
}

// newAPIDoc documents the collection API, including the prescription
// exports that the generated CRUD surface does not cover.
func newAPIDoc(baseURL, locale string) *openapi.Generator {
	g := openapi.NewGenerator("Dossiers API", version, baseURL, locale, patient.Collection())
	g.AddEndpoints(
		openapi.Endpoint{
			Method:      http.MethodGet,
			Path:        "/patients/by-patient-id/{patientId}",
			OperationID: "getPatientsByPatientId",
			Summary:     "Read a patient by hospital identifier",
			Tag:         "Patients",
		},
		openapi.Endpoint{
			Method:      http.MethodPost,
			Path:        "/patients/labels",
			OperationID: "labelsPatientsForm",
			Summary:     "Row labels of unsaved form state",
			Tag:         "Patients",
			Query:       []string{"locale"},
			Body:        "Patients",
		},
		openapi.Endpoint{
			Method:      http.MethodGet,
			Path:        "/patients/{id}/prescription",
			OperationID: "downloadPrescription",
			Summary:     "Prescription PDF of a stored treatment",
			Tag:         "Patients",
			Query:       []string{"path", "locale"},
			Produces:    "application/pdf",
		},
		openapi.Endpoint{
			Method:      http.MethodPost,
			Path:        "/patients/prescription",
			OperationID: "downloadFormPrescription",
			Summary:     "Prescription PDF of unsaved form state",
			Tag:         "Patients",
			Query:       []string{"locale"},
			Body:        "FormState",
			Produces:    "application/pdf",
		},
	)
	return g
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:  cfg.DBMaxConns,
		MinConns:  cfg.DBMinConns,
		SlowQuery: 500 * time.Millisecond,
		Logger:    logger.With().Str("component", "db").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	migrator := db.NewMigrator(pool, cfg.MigrationsDir)
	if n, err := migrator.Pending(ctx); err != nil {
		logger.Warn().Err(err).Msg("cannot read migration state")
	} else if n > 0 {
		logger.Warn().Int("pending", n).Msg("database has pending migrations; run `dossiers-server migrate up`")
	}

	// Telemetry
	tp, err := telemetry.NewTelemetryProvider(ctx, telemetry.TelemetryConfig{
		ServiceName:    "dossiers-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		MetricsEnabled: telemetry.BoolPtr(cfg.MetricsEnabled),
		TracingEnabled: telemetry.BoolPtr(cfg.TracingEnabled),
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()
	tp.ObservePool(pool)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("2M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept-Language", "If-Match", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Disposition", "ETag", "X-Request-ID"},
	}))

	// Infrastructure endpoints stay outside authentication.
	health := db.NewHealthChecker(pool, migrator)
	e.GET("/health", health.HealthHandler())
	if cfg.MetricsEnabled {
		e.GET("/metrics", tp.PrometheusHandler())
	}
	newAPIDoc(fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port), cfg.DefaultLocale).RegisterRoutes(e)

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		logger.Warn().Msg("authentication disabled: requests without a token act as " + auth.DevUserEmail)
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.Audit(logger.With().Str("component", "audit").Logger()))

	// Patients
	patientSvc := patient.NewService(
		patient.NewPatientRepo(pool),
		db.NewTxRunner(pool),
		patient.WithMetrics(tp.Metrics()),
	)
	patient.NewHandler(patientSvc, cfg.DefaultLocale).RegisterRoutes(apiV1)

	// Graceful shutdown
	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		if cfg.TLSEnabled {
			errc <- e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			errc <- e.Start(addr)
		}
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
