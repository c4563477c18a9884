package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tasktrack-api/api/swagger"
	"github.com/noah-isme/tasktrack-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tasktrack-api/internal/middleware"
	"github.com/noah-isme/tasktrack-api/internal/repository"
	"github.com/noah-isme/tasktrack-api/internal/router"
	"github.com/noah-isme/tasktrack-api/internal/service"
	"github.com/noah-isme/tasktrack-api/internal/token"
	"github.com/noah-isme/tasktrack-api/pkg/cache"
	"github.com/noah-isme/tasktrack-api/pkg/config"
	"github.com/noah-isme/tasktrack-api/pkg/database"
	"github.com/noah-isme/tasktrack-api/pkg/logger"
	"github.com/noah-isme/tasktrack-api/pkg/password"
)

// @title TaskTrack API
// @version 1.0.0
// @description Task tracking service with JWT access tokens and revocable refresh sessions
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			return err
		}
		logr.Info("migrations applied")
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, task cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	codec, err := token.NewCodec(token.Config{
		Secret:       cfg.JWT.Secret,
		Issuer:       cfg.JWT.Issuer,
		AccessTTL:    cfg.JWT.Expiration,
		RenewalGrace: cfg.JWT.RenewalGrace,
	})
	if err != nil {
		return fmt.Errorf("init token codec: %w", err)
	}

	validate := validator.New()
	hasher := password.NewHasher(cfg.Password.BcryptCost)
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "tasktrack")

	auditSvc := service.NewAuditService(auditRepo, metrics, logr, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
	})
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()

	refreshSvc := service.NewRefreshTokenService(refreshRepo, hasher, service.RefreshTokenConfig{
		TTL:           cfg.Refresh.Expiration,
		IndexedLookup: cfg.Refresh.IndexedLookup,
		SecretBytes:   cfg.Refresh.SecretByteSize,
	}, logr)
	authSvc := service.NewAuthService(userRepo, refreshSvc, codec, hasher, auditSvc, metrics, validate, logr,
		service.AuthConfig{RotateRefreshTokens: cfg.Refresh.Rotation})
	userSvc := service.NewUserService(userRepo, refreshSvc, auditSvc, validate, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Tasks.CacheTTL, logr, cfg.Tasks.CacheEnabled && redisClient != nil)
	taskSvc := service.NewTaskService(taskRepo, cacheSvc, cfg.Tasks.CacheTTL, validate, logr)

	engine := router.New(router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Logger:         logr,
		Metrics:        metrics,
		Audit:          auditSvc,
		Tokens:         authSvc,
		AuthLimiter: internalmiddleware.NewIPRateLimiter(internalmiddleware.RateLimitConfig{
			Requests: cfg.RateLimit.AuthRequests,
			Window:   cfg.RateLimit.AuthWindow,
			Burst:    cfg.RateLimit.AuthBurst,
		}),
		Auth:   handler.NewAuthHandler(authSvc),
		Tasks:  handler.NewTaskHandler(taskSvc),
		Users:  handler.NewUserHandler(userSvc),
		Health: handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
