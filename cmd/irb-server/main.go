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

	"github.com/irbhub/irbhub/internal/config"
	"github.com/irbhub/irbhub/internal/domain/adverseevent"
	"github.com/irbhub/irbhub/internal/domain/compliance"
	"github.com/irbhub/irbhub/internal/domain/deviation"
	"github.com/irbhub/irbhub/internal/domain/submission"
	"github.com/irbhub/irbhub/internal/platform/audit"
	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/clock"
	"github.com/irbhub/irbhub/internal/platform/db"
	"github.com/irbhub/irbhub/internal/platform/documents"
	"github.com/irbhub/irbhub/internal/platform/middleware"
	"github.com/irbhub/irbhub/internal/platform/notify"
	"github.com/irbhub/irbhub/internal/platform/scheduler"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "irb-server",
		Short: "IRB Compliance Workflow API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the IRB API server",
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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
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

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	runner := db.NewPoolRunner(pool)
	clk := clock.System()

	// Audit trail
	recorder := audit.NewRecorder(audit.NewPGSink(pool), logger, clk)

	// Notifications
	var sender notify.EmailSender
	if cfg.IsDev() && cfg.SMTPHost == "" {
		sender = &notify.MockEmailSender{}
		logger.Warn().Msg("SMTP not configured; notifications are recorded but not delivered")
	} else {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	directory := &notify.StaticDirectory{Domain: cfg.NotifyDomain}
	notifier := notify.NewManager(sender, notify.NewTemplateEngine(), directory, logger)
	registerNotifyRoutes(notifier, cfg)

	// Documents
	docs := documents.NewPGRegistry(pool)

	// Capability policy
	caps := auth.NewPolicyChecker(auth.DefaultPolicies())

	// Domain services
	subSvc := submission.NewService(submission.Config{
		Repo:              submission.NewRepoPG(pool),
		Reviews:           submission.NewReviewRepoPG(pool),
		Runner:            runner,
		Documents:         docs,
		Directory:         &submission.StaticDirectory{Reviewers: cfg.ExpeditedReviewers},
		Notifier:          notifier,
		Audit:             recorder,
		Capabilities:      caps,
		Clock:             clk,
		Logger:            logger,
		AutoApproveExempt: cfg.ExemptAutoApproveCategories,
	})
	aeSvc := adverseevent.NewService(adverseevent.Config{
		Repo:         adverseevent.NewRepoPG(pool),
		Runner:       runner,
		Notifier:     notifier,
		Audit:        recorder,
		Capabilities: caps,
		Clock:        clk,
		Logger:       logger,
	})
	devSvc := deviation.NewService(deviation.Config{
		Repo:         deviation.NewRepoPG(pool),
		Runner:       runner,
		Notifier:     notifier,
		Audit:        recorder,
		Capabilities: caps,
		Clock:        clk,
		Logger:       logger,
	})
	metricRepo := compliance.NewRepoPG(pool)
	compSvc := compliance.NewService(compliance.Config{
		Repo:   metricRepo,
		Runner: runner,
		Audit:  recorder,
		Clock:  clk,
		Logger: logger,
	})

	// Compliance monitor + scheduler
	monitor := compliance.NewMonitor(compliance.MonitorConfig{
		Metrics:    metricRepo,
		Continuing: subSvc,
		Overdue:    subSvc,
		FollowUps:  aeSvc,
		Documents:  docs,
		Notifier:   notifier,
		Audit:      recorder,
		Clock:      clk,
		Logger:     logger,
		Windows: compliance.Windows{
			ContinuingReview: cfg.ContinuingReviewWindow,
			DocumentExpiry:   cfg.DocumentExpiryWindow,
			FlaggedMetrics:   cfg.ComplianceFlagWindow,
		},
	})
	jobs := scheduler.New(logger)
	if cfg.SchedulerEnabled {
		// Due-date scans on the configured interval, overdue/follow-up
		// scans four times as often.
		fast := cfg.ScanInterval / 4
		if fast < time.Minute {
			fast = time.Minute
		}
		if err := monitor.RegisterJobs(jobs, cfg.ScanInterval, fast); err != nil {
			logger.Fatal().Err(err).Msg("failed to register scan jobs")
		}
		if err := jobs.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start scheduler")
		}
		logger.Info().Dur("interval", cfg.ScanInterval).Msg("compliance scans started")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware("dev-user", auth.RoleAdmin))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	// Access log
	e.Use(middleware.AccessLog(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Domain routes
	submission.NewHandler(subSvc).RegisterRoutes(apiV1)
	adverseevent.NewHandler(aeSvc).RegisterRoutes(apiV1)
	deviation.NewHandler(devSvc).RegisterRoutes(apiV1)
	compliance.NewHandler(compSvc).RegisterRoutes(apiV1)
	documents.NewHandler(docs).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	if cfg.SchedulerEnabled {
		jobs.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// registerNotifyRoutes wires each trigger to its desk address.
func registerNotifyRoutes(m *notify.Manager, cfg *config.Config) {
	safety := []notify.TriggerKind{
		notify.TriggerSAEImmediate,
		notify.TriggerDeviationUrgent,
		notify.TriggerFollowUpReminder,
		notify.TriggerComplianceAlert,
	}
	regulatory := []notify.TriggerKind{
		notify.TriggerRegulatoryFDA,
		notify.TriggerRegulatorySponsor,
	}
	irb := []notify.TriggerKind{
		notify.TriggerSubmissionReceived,
		notify.TriggerSubmissionWithdrawn,
		notify.TriggerDecisionIssued,
		notify.TriggerRegulatoryIRB,
		notify.TriggerDeviationReported,
		notify.TriggerContinuingReviewDue,
		notify.TriggerDocumentExpiring,
		notify.TriggerReviewOverdue,
	}
	for _, kind := range safety {
		m.RegisterRoute(kind, cfg.SafetyEmail)
	}
	for _, kind := range regulatory {
		m.RegisterRoute(kind, cfg.RegulatoryEmail)
	}
	for _, kind := range irb {
		m.RegisterRoute(kind, cfg.IRBEmail)
	}
}
