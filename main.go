package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"csgo-case-tracker/internal/api"
	"csgo-case-tracker/internal/config"
	"csgo-case-tracker/internal/database"
	"csgo-case-tracker/internal/settings"
	"csgo-case-tracker/internal/steam"
	"csgo-case-tracker/internal/tracker"
	"csgo-case-tracker/internal/websocket"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}

	cfg := config.Load()
	// LOG_LEVEL=debug surfaces the per-dispatch request trail.
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.WithField("error", err).Fatal("Failed to initialize database")
	}

	// The access layer: one shared rate-limited client; the tracker
	// serializes all refresh work against it.
	store := settings.NewStore(db, cfg, log)
	clock := steam.SystemClock()
	client := steam.NewClient(store, log, clock, steam.ClientOptions{
		InventoryQuota:  cfg.InventoryQuota,
		InventoryWindow: cfg.InventoryWindow,
		QuotaBuffer:     cfg.QuotaBuffer,
		BackoffBase:     cfg.BackoffBase,
		BackoffCap:      cfg.BackoffCap,
		MaxAttempts:     cfg.MaxRetries,
		Timeout:         cfg.HTTPTimeout,
	})
	resolver := steam.NewResolver(client, store, log, clock)
	inventory := steam.NewInventoryFetcher(client, log, clock)
	prices := steam.NewPriceOracle(client, log, clock)

	hub := websocket.NewHub(log)
	go hub.Run()

	trk := tracker.New(db, resolver, inventory, prices, store, log, hub)

	// Scheduled background refresh
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RefreshCron, func() {
		if _, err := trk.RefreshAll(context.Background()); err != nil {
			log.WithField("error", err).Error("Scheduled refresh failed")
		}
	}); err != nil {
		log.WithField("error", err).Fatal("Invalid refresh schedule")
	}
	scheduler.Start()

	r := gin.Default()
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	apiGroup := r.Group("/api/v1")
	api.SetupRoutes(apiGroup, db, trk, store, hub, log)

	r.GET("/ws", func(c *gin.Context) {
		hub.HandleWebSocket(c.Writer, c.Request)
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithField("error", err).Error("Forced shutdown")
	}
}
