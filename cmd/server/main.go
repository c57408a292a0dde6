package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyflow/internal/config"
	"studyflow/internal/database"
	"studyflow/internal/handlers"
	"studyflow/internal/middleware"
	"studyflow/internal/repository"
	"studyflow/internal/router"
	"studyflow/internal/services"
	"studyflow/internal/websocket"
	"studyflow/internal/worker"
	"studyflow/migrations"
)

func main() {
	log.Println("🚀 Starting Studyflow API...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL, database.PoolOptions{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
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
	var migrationFS fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		migrationFS = os.DirFS(cfg.MigrationsDir)
	}
	if err := database.RunMigrations(pool, migrationFS); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	planRepo := repository.NewStudyPlanRepo(pool)
	studySessionRepo := repository.NewStudySessionRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth)
	events := services.NewEventPublisher(redisClients.Queue)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	planHandler := handlers.NewStudyPlanHandler(planRepo, studySessionRepo)
	studySessionHandler := handlers.NewStudySessionHandler(studySessionRepo, planRepo, events)

	// ──── Step 5: Start Plan Progress Workers ────
	workerPool := worker.NewPool(redisClients.Queue, planRepo, events, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	reminderScheduler := services.NewSessionReminderScheduler(
		studySessionRepo,
		emailService,
		events,
		cfg.ReminderLeadTime,
		cfg.ReminderPollInterval,
	)
	reminderScheduler.Start()
	log.Println("✓ Session reminder scheduler started")

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	r := router.New(
		jwtAuth,
		authLimiter,
		authHandler,
		planHandler,
		studySessionHandler,
		wsHub,
		cfg.FrontendURL,
		cfg.TrustProxy,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("✓ Studyflow API ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	err = serve(server, sigChan,
		func() {
			reminderScheduler.Stop()
			authLimiter.Stop()
			wsHub.Close()
		},
		workerPool.Stop,
	)
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// serve runs server until a signal arrives, then shuts it down. It returns
// only after afterShutdown has finished.
func serve(server *http.Server, sig <-chan os.Signal, beforeShutdown, afterShutdown func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sig

		log.Println("Shutting down...")
		beforeShutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		afterShutdown()
		log.Println("✓ Shutdown complete")
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	<-done
	return nil
}
