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

	"makequeue-backend/config"
	"makequeue-backend/internal/api"
	"makequeue-backend/internal/clock"
	"makequeue-backend/internal/db"
	"makequeue-backend/internal/identity"
	"makequeue-backend/internal/quota"
	"makequeue-backend/internal/reserve"
	"makequeue-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "makequeue-backend ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatalf("auth.jwt_secret must be configured; writes cannot be authenticated without it")
	}

	localizer, err := clock.NewLocalizer(cfg.Locale.Timezone)
	if err != nil {
		logger.Fatalf("failed to load time zone: %v", err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Quota table: loaded once up front, kept fresh in the background.
	table, err := quota.LoadTable(cfg.Quota.Path)
	if err != nil {
		logger.Fatalf("failed to load quota table from %s: %v", cfg.Quota.Path, err)
	}
	policy := quota.NewPolicy(table)
	go quota.NewReloader(&cfg.Quota, policy).Run(ctx)

	directory := identity.NewHTTPDirectory(&cfg.Identity)
	events := identity.NewHTTPEventChecker(&cfg.Events)

	service := reserve.NewService(appStore, directory, events, policy, localizer, clock.System())

	// Initialize router
	router := api.NewRouter(cfg, appStore, service, directory)
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
