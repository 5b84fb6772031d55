package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/consensus/internal/auth"
	"github.com/BradenHooton/consensus/internal/background"
	"github.com/BradenHooton/consensus/internal/config"
	"github.com/BradenHooton/consensus/internal/database"
	"github.com/BradenHooton/consensus/internal/handlers"
	middlewareCustom "github.com/BradenHooton/consensus/internal/middleware"
	"github.com/BradenHooton/consensus/internal/query"
	"github.com/BradenHooton/consensus/internal/repositories"
	"github.com/BradenHooton/consensus/internal/routes"
	"github.com/BradenHooton/consensus/internal/services"
	"github.com/BradenHooton/consensus/internal/storage"
	pkgauth "github.com/BradenHooton/consensus/pkg/auth"
	pkghttp "github.com/BradenHooton/consensus/pkg/http"
	pkglogger "github.com/BradenHooton/consensus/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Server)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("token_store", cfg.Auth.TokenStore),
		slog.String("image_server", cfg.Upload.ImageServer),
		slog.String("mail_driver", cfg.Mail.Driver),
	)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db.Pool)
	groupRepo := repositories.NewUserGroupRepository(db.Pool)
	loginLogRepo := repositories.NewLoginLogRepository(db.Pool)
	accessTokenRepo := repositories.NewAccessTokenRepository(db.Pool)

	// Session registry
	var (
		store   auth.TokenStore = accessTokenRepo
		cleanup *background.CleanupManager
	)
	switch cfg.Auth.TokenStore {
	case config.TokenStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		store = repositories.NewRedisTokenStore(client, cfg.Redis.Prefix, cfg.Auth.TokenMaxAge)
	default:
		cleanup = background.NewCleanupManager(accessTokenRepo, logger, cfg.Auth.CleanupInterval, cfg.Auth.TokenMaxAge)
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	registry := auth.NewTokenRegistry(tokenManager, store, userRepo)
	guard := auth.NewGuard(groupRepo)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   time.Duration(cfg.Auth.TimingDelayBaseMs) * time.Millisecond,
		RandomDelay: time.Duration(cfg.Auth.TimingDelayRandomMs) * time.Millisecond,
	})

	// Query engine
	engine := query.NewEngine(db.Pool, query.DefaultRegistry(), logger)

	// Outbound integrations
	mailer, err := services.NewMailer(ctx, cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("initialize mailer: %w", err)
	}
	uploader, err := storage.New(ctx, cfg.Upload)
	if err != nil {
		return fmt.Errorf("initialize uploader: %w", err)
	}

	accounts := services.NewAccountService(services.AccountDeps{
		Users:         userRepo,
		LoginLogs:     loginLogRepo,
		Hasher:        pkgauth.NewHasher(cfg.Auth.BcryptCost),
		Sessions:      registry,
		Guard:         guard,
		Search:        engine,
		Mailer:        mailer,
		Uploader:      uploader,
		Timing:        timingDelay,
		Logger:        logger,
		Audit:         pkglogger.NewAuditLogger(logger),
		MaxImageBytes: cfg.Upload.MaxImageBytes,
	})

	metrics, err := middlewareCustom.NewMetrics(db.Stats)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ips := pkghttp.NewIPResolver(cfg.Server.TrustedProxies)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(metrics.Middleware)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins}))
	router.Use(middlewareCustom.RequestLogger(logger, cfg.Server.Env))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	table := routes.Table(routes.Handlers{
		Auth:    handlers.NewAuthHandler(accounts, ips, metrics, logger),
		Search:  handlers.NewSearchHandler(accounts, logger),
		Health:  handlers.NewHealthHandler(db, logger),
		Metrics: metrics.Handler(),
	})
	routes.Register(router, table,
		auth.Authenticate(registry, logger),
		func() func(http.Handler) http.Handler {
			return middlewareCustom.RateLimitByIP(middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.LoginRatePerMinute}, ips)
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cleanup != nil {
		g.Go(func() error {
			cleanup.Start(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
