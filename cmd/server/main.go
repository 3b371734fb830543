package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reporthub-backend/internal/collab"
	"reporthub-backend/internal/config"
	"reporthub-backend/internal/database"
	"reporthub-backend/internal/events"
	"reporthub-backend/internal/handlers"
	"reporthub-backend/internal/middleware"
	"reporthub-backend/internal/repository"
	"reporthub-backend/internal/router"
	"reporthub-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting ReportHub Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	reportRepo := repository.NewReportRepo(pool)

	// ──── Step 5: Initialize Session Core ────
	store := collab.NewStore(cfg.SessionTTL)
	publisher := events.NewRedisPublisher(redisClients.Publish)
	coordinator := collab.NewCoordinator(store, publisher, cfg.FrontendURL, cfg.PresenceWindow, cfg.UpdateRetention)
	log.Println("✓ Session coordinator initialized")

	reaper := collab.NewReaper(store, cfg.ReaperInterval, cfg.PresenceWindow, cfg.UpdateRetention)
	reaper.Start()

	// ──── Initialize Services & Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	collabHandler := handlers.NewCollabHandler(coordinator)
	reportHandler := handlers.NewReportHandler(coordinator, reportRepo)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(coordinator, redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		collabHandler,
		reportHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		reaper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ ReportHub Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
