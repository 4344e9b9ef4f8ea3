// Package main runs the calendar HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ems-calendar/backend/config"
	"github.com/ems-calendar/backend/internal/auth"
	"github.com/ems-calendar/backend/internal/events"
	"github.com/ems-calendar/backend/internal/middleware"
	"github.com/ems-calendar/backend/internal/permissions"
	"github.com/ems-calendar/backend/internal/store/postgres"
	"github.com/ems-calendar/backend/internal/versions"
	"github.com/ems-calendar/backend/pkg/database"
	"github.com/ems-calendar/backend/pkg/redis"
	"github.com/ems-calendar/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var (
		revoker auth.Revoker
		counter middleware.Counter
	)
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable; token blacklist and rate limiting disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		revoker = auth.NewBlacklist(rdb)
		counter = middleware.NewRedisCounter(rdb)
	}

	db := postgres.New(pool)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpireMinutes, cfg.JWT.RefreshExpireMinutes)

	authHandler := auth.NewHandler(db.Users(), jwtService, revoker, logger)
	eventHandler := events.NewHandler(events.NewService(db, logger))
	permissionHandler := permissions.NewHandler(permissions.NewService(db, logger))
	historyHandler := versions.NewHandler(versions.NewService(db))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.Origins()))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.RateLimit(counter, cfg.RateLimit.PerMinute, logger))

	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	api := router.Group(cfg.Server.APIPrefix)
	{
		a := api.Group("/auth")
		a.POST("/register", authHandler.Register)
		a.POST("/login", authHandler.Login)
		a.POST("/refresh", authHandler.Refresh)

		requireAuth := middleware.JWT(jwtService, db.Users(), revoker, logger)
		a.POST("/logout", requireAuth, authHandler.Logout)
		a.GET("/me", requireAuth, authHandler.Me)

		ev := api.Group("/events", requireAuth)
		eventHandler.Register(ev)
		permissionHandler.Register(ev)
		historyHandler.Register(ev)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("api_prefix", cfg.Server.APIPrefix))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
