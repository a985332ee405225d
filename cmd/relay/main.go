package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ripplesocial/relay/internal/cache"
	"github.com/ripplesocial/relay/internal/config"
	"github.com/ripplesocial/relay/internal/database"
	"github.com/ripplesocial/relay/internal/identity"
	"github.com/ripplesocial/relay/internal/logger"
	"github.com/ripplesocial/relay/internal/metrics"
	"github.com/ripplesocial/relay/internal/middleware"
	"github.com/ripplesocial/relay/internal/relay"
	"github.com/ripplesocial/relay/internal/store"
	"go.uber.org/zap"
)

func main() {
	// No .env in production; the system environment is enough.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()

	logger.Log.Info("ripple relay starting")

	if err := database.Initialize(cfg.DatabaseURL); err != nil {
		logger.Log.Fatal("database init failed", zap.Error(err))
	}
	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("database migration failed", zap.Error(err))
	}

	// Redis is optional: without it the presence mirror is disabled and
	// the relay's in-memory registry is the only presence source.
	redisClient, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		logger.Log.Warn("redis unavailable, presence mirror disabled", zap.Error(err))
		redisClient = nil
	}
	defer redisClient.Close()

	metrics.Initialize()

	verifier := identity.NewService(cfg.JWTSecret, database.DB)
	persistence := store.NewGormStore(database.DB)

	rooms := relay.NewRoomManager()
	hub := relay.NewHub(rooms)

	presence := relay.NewTracker(hub, persistence, redisClient, cfg.StoreTimeout)
	presence.Start()
	defer presence.Stop()

	router := relay.NewRouter(hub, rooms, verifier, persistence, cfg.StoreTimeout)
	router.RegisterHandlers()

	gate := relay.NewHandler(hub, verifier, presence, cfg.VerifyTimeout)

	go hub.Run()

	if os.Getenv("ENVIRONMENT") != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(), middleware.RequestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // restrict per deployment
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "ripple-relay",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		ws := api.Group("/ws")
		{
			// Connection endpoint. Auth via ?token=... or Authorization
			// header; rejected attempts get a JSON error before upgrade.
			ws.GET("", gate.HandleWebSocket)
			ws.GET("/connect", gate.HandleWebSocket)

			ws.POST("/online", gate.HandleOnlineStatus)
			ws.GET("/stats", gate.HandleStats)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("relay listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := gate.Shutdown(ctx); err != nil {
		logger.Log.Warn("relay shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("relay exited")
}
