package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/dmstream/internal/api"
	"github.com/lalith-99/dmstream/internal/blob"
	"github.com/lalith-99/dmstream/internal/chat"
	"github.com/lalith-99/dmstream/internal/config"
	"github.com/lalith-99/dmstream/internal/db"
	"github.com/lalith-99/dmstream/internal/friends"
	"github.com/lalith-99/dmstream/internal/middleware"
	"github.com/lalith-99/dmstream/internal/observ"
	"github.com/lalith-99/dmstream/internal/presence"
	"github.com/lalith-99/dmstream/internal/repository"
	"github.com/lalith-99/dmstream/internal/repository/memory"
	"github.com/lalith-99/dmstream/internal/repository/postgres"
	"github.com/lalith-99/dmstream/internal/session"
	"github.com/lalith-99/dmstream/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type repos struct {
	users       repository.UserRepository
	messages    repository.MessageRepository
	friendships repository.FriendshipRepository
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel, cfg.NodeID)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// ---------------------------------------------------------------
	// 2. Storage
	// ---------------------------------------------------------------
	var r repos
	var storageCheck api.StorageCheck
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart")
		store := memory.New()
		r = repos{users: store.Users(), messages: store.Messages(), friendships: store.Friendships()}
	default:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		storageCheck = database.Health
		pool := database.Pool()
		r = repos{
			users:       postgres.NewUserStore(pool),
			messages:    postgres.NewMessageStore(pool),
			friendships: postgres.NewFriendshipStore(pool),
		}
	}

	// ---------------------------------------------------------------
	// 3. Presence
	// ---------------------------------------------------------------
	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.RedisURL != "" {
		rm, err := presence.NewRedisMirror(ctx, cfg.RedisURL, cfg.NodeID, cfg.PresenceTTL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rm.Close()
		mirror = rm
	}

	registry := presence.NewRegistry()
	lifecycle := session.NewLifecycle(registry, mirror, logger)
	router := chat.NewRouter(r.users, r.messages, registry, cfg.StorageTimeout, logger)
	friendMgr := friends.NewManager(r.users, r.friendships, registry, cfg.StorageTimeout, logger)

	blobs, err := blob.NewLocalStore(cfg.UploadDir, cfg.UploadBaseURL, cfg.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("create upload store: %w", err)
	}

	// ---------------------------------------------------------------
	// 4. Websocket transport
	// ---------------------------------------------------------------
	dispatcher := ws.NewDispatcher(logger)
	ws.RegisterHandlers(dispatcher, ws.Services{
		Lifecycle:      lifecycle,
		Router:         router,
		Friends:        friendMgr,
		Users:          r.users,
		StorageTimeout: cfg.StorageTimeout,
	}, logger)
	wsHandler := ws.NewHandler(lifecycle, dispatcher, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		EventRPS:       cfg.WSEventRPS,
		EventBurst:     cfg.WSEventBurst,
	}, logger)

	// ---------------------------------------------------------------
	// 5. HTTP routes
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	authHandler := api.NewAuthHandler(r.users, cfg.JWTSecret, cfg.TokenTTL, cfg.StorageTimeout, logger)
	userHandler := api.NewUserHandler(r.users, cfg.StorageTimeout, logger)
	uploadHandler := api.NewUploadHandler(blobs, cfg.MaxUploadBytes, logger)

	// Public.
	engine.GET("/v1/health", api.Health(registry, storageCheck))
	engine.GET("/ws", wsHandler.ServeWS)
	engine.Static(cfg.UploadBaseURL, blobs.Dir())

	authGroup := engine.Group("/v1/auth")
	authGroup.Use(middleware.RateLimit(rate.Limit(cfg.AuthRPS), cfg.AuthBurst))
	authGroup.POST("/signup", authHandler.Signup)
	authGroup.POST("/login", authHandler.Login)

	for _, p := range []string{"/auth/google", "/auth/google/callback", "/auth/facebook", "/auth/facebook/callback"} {
		engine.GET(p, api.OAuthNotImplemented)
	}

	// Everything else under /v1 needs a token.
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	v1.GET("/users/me", userHandler.GetMe)
	v1.POST("/upload", uploadHandler.Upload)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting dmstream",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
