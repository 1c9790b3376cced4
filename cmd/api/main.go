package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"lab-inventory-api/internal/config"
	"lab-inventory-api/internal/database"
	"lab-inventory-api/internal/handler"
	"lab-inventory-api/internal/middleware"
	"lab-inventory-api/internal/notification"
	"lab-inventory-api/internal/router"
	"lab-inventory-api/internal/service"
	serviceNotification "lab-inventory-api/internal/service/notification"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	logger := log.Default()

	// Sync event delivery is optional; without a webhook URL the
	// pipeline runs silent.
	var notifier service.EventNotifier
	if cfg.Webhook.URL != "" {
		client := notification.NewWebhookNotifier(cfg.Webhook, logger)
		notifier = serviceNotification.NewServiceAdapter(client)
	}

	// Initialize the reconciliation service and handlers
	syncService := service.NewSyncService(db, notifier, logger)
	h := handler.NewAgentHandler(syncService, logger, cfg.Sync.BatchTimeout)

	// Setup router with security configuration
	r := router.NewRouter(h, cfg)

	// Wrap router with logging middleware
	loggingMW := middleware.NewLoggingMiddleware(logger)
	finalHandler := loggingMW.LogRequests(r)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        finalHandler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Channel to listen for interrupt signal to gracefully shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("Starting agent sync API on port %d", cfg.Port)
		log.Printf("Security: Rate limit=%d RPS, Burst=%d, Timeout=%v",
			cfg.Security.RateLimitRPS,
			cfg.Security.RateLimitBurst,
			cfg.Security.RequestTimeout,
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Block until we receive a signal
	<-done
	log.Println("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Security.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	} else {
		log.Println("Server exited gracefully")
	}
}
