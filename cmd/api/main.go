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

	"github.com/BradenHooton/bankauth/internal/auth"
	"github.com/BradenHooton/bankauth/internal/background"
	"github.com/BradenHooton/bankauth/internal/config"
	"github.com/BradenHooton/bankauth/internal/database"
	"github.com/BradenHooton/bankauth/internal/handlers"
	"github.com/BradenHooton/bankauth/internal/lockout"
	middlewareCustom "github.com/BradenHooton/bankauth/internal/middleware"
	"github.com/BradenHooton/bankauth/internal/models"
	"github.com/BradenHooton/bankauth/internal/repositories"
	"github.com/BradenHooton/bankauth/internal/routes"
	"github.com/BradenHooton/bankauth/internal/services"
	pkgauth "github.com/BradenHooton/bankauth/pkg/auth"
	pkghttp "github.com/BradenHooton/bankauth/pkg/http"
	pkglogger "github.com/BradenHooton/bankauth/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("ledger_backend", cfg.Lockout.Backend),
		slog.String("notify_provider", cfg.Notify.Provider))

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := database.Migrate(migrateCtx, cfg.Database.DSN())
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	clock := clockwork.NewRealClock()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)

	store, closeStore, err := newLedgerStore(cfg.Lockout, db)
	if err != nil {
		logger.Error("failed to initialize login ledger store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	ledger, err := lockout.NewLedger(store, cfg.Lockout.Policy, logger)
	if err != nil {
		logger.Error("failed to initialize login ledger", slog.Any("error", err))
		os.Exit(1)
	}

	pruner := background.NewLedgerPruner(ledger, clock, logger, cfg.Lockout.PruneInterval)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, clock)
	verifier := pkgauth.NewBcryptVerifier(cfg.Auth.BcryptCost)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay: cfg.Auth.FailureDelay,
		Jitter:    cfg.Auth.FailureDelayJitter,
	}, clock)

	loginOpts := []services.LoginServiceOption{services.WithTimingDelay(timingDelay)}

	notifier, err := newLockoutNotifier(cfg.Notify, logger)
	if err != nil {
		logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
		os.Exit(1)
	}
	if notifier != nil {
		loginOpts = append(loginOpts, services.WithLockoutNotifier(notifier))
	}

	// Initialize services
	loginService := services.NewLoginService(userRepo, verifier, ledger, tokenManager, clock, logger, loginOpts...)
	userService := services.NewUserService(userRepo, verifier, logger, services.WithPasswordLockout(ledger, clock))

	ipResolver := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService).WithAudit(auditLogger, ipResolver)
	authHandler := handlers.NewAuthHandler(loginService, ipResolver, auditLogger, tokenManager.AccessTokenExpiry())

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, verifier, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipResolver))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	loginRateLimit := middlewareCustom.DefaultLoginRateLimit()
	if cfg.Auth.LoginRequestsPerMin > 0 {
		loginRateLimit.RequestsPerMinute = cfg.Auth.LoginRequestsPerMin
	}

	// Register routes
	routes.RegisterRoutes(router, userHandler, authHandler, tokenManager, userRepo, ipResolver, loginRateLimit)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start ledger pruning
	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	defer pruneCancel()

	go pruner.Start(pruneCtx)

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

	pruneCancel()
	pruner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Let in-flight lockout notifications finish
	loginService.Wait()

	logger.Info("server stopped gracefully")
}

// newLedgerStore opens the configured lockout ledger backend
func newLedgerStore(cfg config.LockoutConfig, db *database.DB) (lockout.StateStore, func(), error) {
	switch cfg.Backend {
	case config.LedgerBackendMemory:
		return lockout.NewMemoryStore(), func() {}, nil
	case config.LedgerBackendSQLite:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		repo, err := repositories.NewSQLiteLoginStateRepository(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return repositories.NewLoginStateRepository(db), func() {}, nil
	}
}

// newLockoutNotifier returns nil when lockout notifications are disabled
func newLockoutNotifier(cfg config.NotifyConfig, logger *slog.Logger) (services.LockoutNotifier, error) {
	switch cfg.Provider {
	case config.NotifyProviderSES:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return services.NewSESLockoutNotifier(ctx, cfg.AWSRegion, cfg.FromAddress, logger)
	case config.NotifyProviderSMTP:
		return services.NewSMTPLockoutNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromAddress, logger), nil
	default:
		return nil, nil
	}
}

// ensureAdminUser creates the first admin user if ADMIN_USERNAME, ADMIN_EMAIL
// and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, verifier *pkgauth.BcryptVerifier, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		logger.Info("admin bootstrap variables not set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByUsername(ctx, adminUsername)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := verifier.Hash(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Username:     adminUsername,
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
