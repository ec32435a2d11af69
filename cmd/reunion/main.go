package main

import (
	"context"
	"log"
	"time"

	"github.com/mossy-p/reunion/config"
	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/handlers"
	"github.com/mossy-p/reunion/internal/redis"
	"github.com/mossy-p/reunion/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "YAML config file (environment variables still override it)")
	pflag.Parse()

	// Load configuration
	cfg := config.Load()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	st, cleanup := openStore(cfg)
	defer cleanup()

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	handlers.Register(router, st, handlers.NewHub(), cfg.JWTSecret)

	// Start server
	log.Printf("Starting reunion signaling server on port %s (%s store)", cfg.Port, cfg.Store.Backend)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func openStore(cfg *config.Config) (store.Store, func()) {
	switch cfg.Store.Backend {
	case "redis":
		if err := redis.Connect(context.Background(), cfg.Redis); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Println("Redis connection established")
		return store.NewRedisStore(redis.GetClient(), cfg.Store.RoomTTL), func() { redis.Close() }

	case "memory":
		mem := store.NewMemoryStore(clock.Real())
		stop := make(chan struct{})
		go sweep(mem, cfg.Store.RoomTTL, stop)
		return mem, func() { close(stop) }

	default:
		log.Fatalf("Unknown store backend %q (want redis or memory)", cfg.Store.Backend)
		return nil, nil
	}
}

// sweep expires idle rooms in the memory store the way Redis TTLs do.
func sweep(mem *store.MemoryStore, ttl time.Duration, stop <-chan struct{}) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := mem.Sweep(ttl); n > 0 {
				log.Printf("Expired %d idle rooms", n)
			}
		}
	}
}
