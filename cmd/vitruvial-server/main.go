package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vitruvial/vitruvial/internal/config"
	"github.com/vitruvial/vitruvial/internal/domain/email"
	"github.com/vitruvial/vitruvial/internal/domain/extract"
	"github.com/vitruvial/vitruvial/internal/domain/patient"
	"github.com/vitruvial/vitruvial/internal/platform/auth"
	"github.com/vitruvial/vitruvial/internal/platform/db"
	"github.com/vitruvial/vitruvial/internal/platform/middleware"
	"github.com/vitruvial/vitruvial/internal/platform/phi"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "vitruvial-server",
		Short: "Patient record reconciliation and extraction proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (Postgres store only)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// PHI encryption
	encryptor, err := phi.FromHexKey(cfg.PHIEncryptionKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid PHI encryption key")
	}

	// Durable store
	ctx := context.Background()
	var (
		repo   patient.Repository
		ping   db.PingFunc
		closer func()
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		repo = patient.NewRepoPG(pool, encryptor)
		ping = pool.Ping
		closer = pool.Close
		logger.Info().Msg("connected to postgres store")
	case config.StoreDriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open sqlite store")
		}
		repo, err = patient.NewRepoSQLite(conn, encryptor)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize sqlite store")
		}
		ping = conn.PingContext
		closer = func() { conn.Close() }
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")
	}
	defer closer()

	// Record service. Rehydrate before any route is reachable; a failed
	// load degrades to an empty index rather than refusing to start.
	patientSvc := patient.NewService(repo, logger)
	if err := patientSvc.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("starting without persisted history")
	}
	<-patientSvc.Ready()
	defer patientSvc.Close()

	// Collaborators
	extractClient := extract.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL, logger)
	sender := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	emailSvc := email.NewService(patientSvc, sender, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Client auth
	var authMW echo.MiddlewareFunc
	switch cfg.ResolvedAuthMode() {
	case "development":
		logger.Warn().Msg("running without client authentication (ENV=development)")
		authMW = auth.DevAuthMiddleware()
	case "jwt":
		authMW = auth.JWTMiddleware(cfg.JWTSecret)
	default:
		authMW = auth.AppTokenMiddleware(cfg.AppToken)
	}

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(ping, cfg.StoreDriver))

	// Record API
	apiV1 := e.Group("/api/v1", authMW)
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	email.NewHandler(emailSvc).RegisterRoutes(apiV1)

	// Extraction proxy. Lower rate limit: every request costs an LLM call.
	proxy := e.Group("/api", authMW)
	proxy.Use(middleware.RateLimit(middleware.RateLimitConfig{RequestsPerSecond: 2, BurstSize: 5}))
	extract.NewHandler(extractClient, logger).RegisterRoutes(proxy)

	// Serve with graceful shutdown; drain scheduled writes before exit.
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()
	logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	patientSvc.Flush()
	return nil
}
