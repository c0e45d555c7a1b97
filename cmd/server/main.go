// Package main runs the rooms HTTP server with WebSocket room views and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-rooms/backend/config"
	"github.com/aura-rooms/backend/internal/auth"
	"github.com/aura-rooms/backend/internal/broadcasts"
	"github.com/aura-rooms/backend/internal/middleware"
	"github.com/aura-rooms/backend/internal/models"
	"github.com/aura-rooms/backend/internal/provider"
	"github.com/aura-rooms/backend/internal/ratelimit"
	"github.com/aura-rooms/backend/internal/realtime"
	"github.com/aura-rooms/backend/internal/rooms"
	"github.com/aura-rooms/backend/internal/session"
	"github.com/aura-rooms/backend/internal/worker"
	"github.com/aura-rooms/backend/pkg/clock"
	"github.com/aura-rooms/backend/pkg/database"
	"github.com/aura-rooms/backend/pkg/redis"
	"github.com/aura-rooms/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	clk := clock.Real()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	videoProvider, err := provider.NewHTTPClient(provider.HTTPConfig{
		BaseURL:     cfg.Provider.BaseURL,
		TokenID:     cfg.Provider.TokenID,
		TokenSecret: cfg.Provider.TokenSecret,
		Timeout:     cfg.Provider.Timeout(),
	}, logger)
	if err != nil {
		logger.Fatal("provider", zap.Error(err))
	}

	limits, err := newLimiters(cfg.Limits, rdb, clk, logger)
	if err != nil {
		logger.Fatal("rate limits", zap.Error(err))
	}

	// Rooms and membership
	roomRepo := rooms.NewRepository(pool)
	roomHandler := rooms.NewHandler(roomRepo, logger)

	// Broadcast history and live state
	broadcastRepo := broadcasts.NewRepository(pool)
	broadcastHandler := broadcasts.NewHandler(broadcastRepo, logger)
	recorder := broadcasts.NewRecorder(broadcastRepo, roomRepo, logger)

	redisPubSub := realtime.NewRedisPubSub(rdb, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	hub.SetAudienceChangeHandler(recorder.AudienceChanged)

	wsValidate := func(token string) (realtime.Identity, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return realtime.Identity{}, err
		}
		return realtime.Identity{UserID: claims.UserID, DisplayName: claims.DisplayName, AvatarURL: claims.AvatarURL}, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/rooms", roomHandler.Create)
		api.GET("/rooms/:id", roomHandler.GetByID)
		api.GET("/rooms/:id/access", roomHandler.Access)
		api.POST("/rooms/:id/join", roomHandler.Join)
		api.POST("/rooms/:id/leave", roomHandler.Leave)
		api.GET("/rooms/:id/broadcasts", middleware.RequireRoomRole(roomRepo, models.RoleOwner), broadcastHandler.List)
		api.GET("/rooms/:id/audience_count", middleware.RequireRoomRole(roomRepo, models.RoleOwner, models.RoleMember, models.RoleViewer), func(c *gin.Context) {
			room := c.MustGet(middleware.ContextRoom).(*models.Room)
			response.OK(c, gin.H{"room_id": room.ID, "audience_count": hub.AudienceCount(room.ID)})
		})
	}

	// WebSocket room view (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(realtime.ViewDeps{
		Hub:            hub,
		Provider:       videoProvider,
		Membership:     roomRepo,
		Limits:         limits,
		Validate:       wsValidate,
		PollInterval:   cfg.Session.PollInterval(),
		Clock:          clk,
		Observers:      []session.Listener{recorder.Observe},
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:         logger,
	}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (stale live-state reconciliation)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.InProcess {
		reconciler := worker.NewReconciler(roomRepo, broadcastRepo, videoProvider, cfg.Worker.ReconcileInterval(), clk, logger)
		go reconciler.Run(workerCtx)
		logger.Info("reconciler started", zap.Duration("interval", cfg.Worker.ReconcileInterval()))
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newLimiters builds the limiter set on the configured backend.
func newLimiters(cfg config.LimitsConfig, rdb *goredis.Client, clk clock.Clock, logger *zap.Logger) (ratelimit.Set, error) {
	policies := ratelimit.Policies{
		Chat:      ratelimit.Policy(cfg.Chat),
		Heartbeat: ratelimit.Policy(cfg.Heartbeat),
		StreamOps: ratelimit.Policy(cfg.StreamOps),
		Status:    ratelimit.Policy(cfg.Status),
	}
	if cfg.Backend == "redis" {
		return ratelimit.NewRedisSet(rdb, policies, clk, logger)
	}
	return ratelimit.NewMemorySet(policies, clk)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
