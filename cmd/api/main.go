package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mwhitfield/authgate/internal/auth"
	"github.com/mwhitfield/authgate/internal/background"
	"github.com/mwhitfield/authgate/internal/cache"
	"github.com/mwhitfield/authgate/internal/config"
	"github.com/mwhitfield/authgate/internal/database"
	"github.com/mwhitfield/authgate/internal/detect"
	"github.com/mwhitfield/authgate/internal/handlers"
	middlewareCustom "github.com/mwhitfield/authgate/internal/middleware"
	"github.com/mwhitfield/authgate/internal/models"
	"github.com/mwhitfield/authgate/internal/repositories"
	"github.com/mwhitfield/authgate/internal/routes"
	"github.com/mwhitfield/authgate/internal/services"
	pkgauth "github.com/mwhitfield/authgate/pkg/auth"
	pkghttp "github.com/mwhitfield/authgate/pkg/http"
	pkglogger "github.com/mwhitfield/authgate/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Counter store backing the rate limiter and the activity detector
	counters, err := cache.NewCounterStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer counters.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Cleanup manager prunes aged attempts and audit rows
	cleanupManager := background.NewCleanupManager(
		attemptRepo,
		auditRepo,
		logger,
		cfg.Auth.CleanupInterval,
		cfg.Auth.AttemptRetention,
		cfg.Auth.AttemptRetention,
	)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	// Audit pipeline: structured log synchronously, database asynchronously
	auditRecorder := services.NewAuditRecorder(pkglogger.NewAuditLogger(logger), auditRepo, logger)

	// Durable lockout tracking over the login attempt log
	tracker := services.NewAttemptTracker(attemptRepo, services.TrackerConfig{
		MaxAttempts: cfg.Auth.LockoutMaxAttempts,
		Window:      cfg.Auth.LockoutWindow,
	}, logger)

	// Counter-based admission gates
	rateLimiter := services.NewRateLimiter(counters, services.RateLimitConfig{
		AuthPerIPMax:           cfg.Limits.AuthPerIPMax,
		AuthPerIPWindow:        cfg.Limits.AuthPerIPWindow,
		AuthGlobalMax:          cfg.Limits.AuthGlobalMax,
		AuthGlobalWindow:       cfg.Limits.AuthGlobalWindow,
		ProgressiveBaseBackoff: cfg.Limits.ProgressiveBaseBackoff,
		ProgressiveMaxBackoff:  cfg.Limits.ProgressiveMaxBackoff,
		ProgressiveResetAfter:  cfg.Limits.ProgressiveResetAfter,
	}, logger)

	// Suspicious activity detector shares the counter store
	detector := detect.New(counters, detect.Options{
		FlagThreshold:    cfg.Detector.FingerprintFlagThreshold,
		BlockThreshold:   cfg.Detector.FingerprintBlockThreshold,
		Window:           cfg.Detector.FingerprintWindow,
		RequireUserAgent: cfg.Detector.RequireUserAgent,
	}, logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	passwordValidator := pkgauth.NewPasswordValidator(pkgauth.DefaultPasswordPolicy())

	// Initialize services
	authService := services.NewAuthService(
		userRepo,
		tracker,
		tokenManager,
		passwordValidator,
		timingDelay,
		auditRecorder,
		logger,
	)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, rateLimiter, auditRecorder, ipConfig, logger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.SuspiciousActivity(detector, auditRecorder, ipConfig))

	// Register routes
	routes.RegisterRoutes(router, authHandler, tokenManager, middlewareCustom.APIRateLimitConfig{
		UserRequestsPerWindow: cfg.Limits.APIUserMax,
		AnonRequestsPerWindow: cfg.Limits.APIAnonMax,
		Window:                cfg.Limits.APIWindow,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Let in-flight audit writes land before the process exits.
	auditRecorder.Flush()

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first central admin user if ADMIN_EMAIL and
// ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	adminEmail = services.NormalizeEmail(adminEmail)

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, models.CentralContext(), adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	// Hash password
	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	// Create admin user
	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         "admin",
		Status:       models.StatusActive,
	}

	_, err = userRepo.Create(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
