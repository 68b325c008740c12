package main

import (
	"context"
	"errors"
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

	"github.com/rdrf/rdrf/internal/config"
	"github.com/rdrf/rdrf/internal/domain/patient"
	"github.com/rdrf/rdrf/internal/domain/registry"
	"github.com/rdrf/rdrf/internal/domain/review"
	"github.com/rdrf/rdrf/internal/domain/rpc"
	"github.com/rdrf/rdrf/internal/platform/auth"
	"github.com/rdrf/rdrf/internal/platform/blobstore"
	"github.com/rdrf/rdrf/internal/platform/cache"
	"github.com/rdrf/rdrf/internal/platform/db"
	"github.com/rdrf/rdrf/internal/platform/events"
	"github.com/rdrf/rdrf/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "rdrf-server",
		Short: "Clinical patient registry API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(siteCmd())
	rootCmd.AddCommand(createReviewCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the registry API server",
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
			site, _ := cmd.Flags().GetString("site")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			if !db.ValidSiteID(site) {
				return fmt.Errorf("invalid site identifier: %s", site)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(site)
			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("site", "default", "Site whose schema is migrated")
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			site, _ := cmd.Flags().GetString("site")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}
			if !db.ValidSiteID(site) {
				return fmt.Errorf("invalid site identifier: %s", site)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(site)
			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("site", "default", "Site whose schema is inspected")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
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

func siteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage registry sites",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a site schema and apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating site schema: %s\n", db.SchemaName(name))
			if err := db.CreateSiteSchema(ctx, pool, name, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Println("Site created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Site identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func createReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-review",
		Short: "Send a review to the parents of registry patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			registryCode, _ := cmd.Flags().GetString("registry-code")
			reviewCode, _ := cmd.Flags().GetString("review-code")
			patientID, _ := cmd.Flags().GetString("patient-id")
			site, _ := cmd.Flags().GetString("site")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env, os.Stderr)
			if site == "" {
				site = cfg.DefaultSite
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx, release, err := db.ScopeConn(ctx, pool, site)
			if err != nil {
				return err
			}
			defer release()

			b, err := newBackends(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.close()

			svcs := newServices(pool, cfg, b, logger)
			err = svcs.reviews.CreateReviews(ctx, cmd.OutOrStdout(), registryCode, reviewCode, patientID)
			if errors.Is(err, review.ErrAborted) {
				release()
				b.close()
				pool.Close()
				os.Exit(1)
			}
			return err
		},
	}
	cmd.Flags().StringP("registry-code", "r", "", "Registry code")
	cmd.Flags().String("review-code", "", "Review code")
	cmd.Flags().String("patient-id", "", "Only create the review for this patient")
	cmd.Flags().String("site", "", "Site to run against (defaults to DEFAULT_SITE)")
	return cmd
}

func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// redisKeyPrefix is shared by every site; cache keys carry their own site.
const redisKeyPrefix = "rdrf:"

// backends are the optional external systems selected by configuration.
type backends struct {
	cache  cache.Cache
	blobs  blobstore.Store
	events events.Publisher
	closer []io.Closer
}

func newBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, err
		}
		b.cache = rc
		b.closer = append(b.closer, rc)
	} else {
		b.cache = cache.NewMemory()
	}

	switch cfg.StorageBackend {
	case "s3":
		s3, err := blobstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Endpoint, cfg.S3Region)
		if err != nil {
			b.close()
			return nil, err
		}
		b.blobs = s3
	default:
		b.blobs = blobstore.NewMemoryStore()
	}

	pub, err := events.NewPublisher(events.Config{
		Backend:      cfg.EventsBackend,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		WebhookURL:   cfg.WebhookURL,
	}, logger)
	if err != nil {
		b.close()
		return nil, err
	}
	b.events = pub
	b.closer = append(b.closer, pub)
	return b, nil
}

func (b *backends) close() {
	for _, c := range b.closer {
		c.Close()
	}
	b.closer = nil
}

type services struct {
	registries *registry.Service
	patients   *patient.Service
	reviews    *review.Service
}

func newServices(pool *pgxpool.Pool, cfg *config.Config, b *backends, logger zerolog.Logger) *services {
	tx := db.PoolTx(pool)

	registrySvc := registry.NewService(registry.Repos{
		Registries: registry.NewRegistryRepo(pool),
		Forms:      registry.NewFormRepo(pool),
		Sections:   registry.NewSectionRepo(pool),
		CDEs:       registry.NewCDERepo(pool),
		Wizards:    registry.NewWizardRepo(pool),
		Responses:  registry.NewResponseRepo(pool),
	}, b.cache, cfg.CacheTTL, logger)

	patientSvc := patient.NewService(patient.Deps{
		Patients:   patient.NewPatientRepo(pool),
		Doctors:    patient.NewDoctorRepo(pool),
		Lookups:    patient.NewLookupRepo(pool),
		Registries: registrySvc,
		Blobs:      b.blobs,
		Events:     b.events,
		Tx:         tx,
		SexChoices: cfg.SexChoices(),
		Logger:     logger,
	})

	reviewSvc := review.NewService(review.Deps{
		Reviews:        review.NewReviewRepo(pool),
		PatientReviews: review.NewPatientReviewRepo(pool),
		Registries:     registrySvc,
		Patients:       patientSvc,
		Events:         b.events,
		Tx:             tx,
		BaseURL:        cfg.ReviewBaseURL,
		Logger:         logger,
	})

	return &services{registries: registrySvc, patients: patientSvc, reviews: reviewSvc}
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return jc
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(jwtConfig(cfg))
	}
	return auth.JWTMiddleware(jwtConfig(cfg))
}

func rpcCommands(svcs *services) (*rpc.Registry, error) {
	commands := rpc.NewRegistry()
	if err := commands.Register(rpc.Builtins(svcs.registries, svcs.patients)...); err != nil {
		return nil, err
	}
	return commands, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	b, err := newBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise backends")
	}
	defer b.close()
	logger.Info().
		Bool("redis_cache", cfg.RedisURL != "").
		Str("storage", cfg.StorageBackend).
		Str("events", cfg.EventsBackend).
		Msg("backends ready")

	svcs := newServices(pool, cfg, b, logger)
	commands, err := rpcCommands(svcs)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register rpc commands")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Site-ID"},
	}))
	e.Use(middleware.BodyLimit("2M", "25M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(authMiddleware(cfg))
	e.Use(db.SiteMiddleware(pool, cfg.DefaultSite))
	e.Use(middleware.Audit(logger))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, cfg.InstallName))

	registry.NewHandler(svcs.registries).RegisterRoutes(apiV1)
	patient.NewHandler(svcs.patients).RegisterRoutes(apiV1)
	reviewHandler := review.NewHandler(svcs.reviews, svcs.patients)
	reviewHandler.RegisterRoutes(apiV1)
	reviewHandler.RegisterPublicRoutes(e)
	rpc.NewHandler(rpc.NewExecutor(commands, logger)).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("install", cfg.InstallName).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
