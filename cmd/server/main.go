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

	"caredesk.io/telehealth/internal/api"
	"caredesk.io/telehealth/internal/auth"
	"caredesk.io/telehealth/internal/config"
	"caredesk.io/telehealth/internal/core"
	"caredesk.io/telehealth/internal/notify"
	"caredesk.io/telehealth/internal/registration"
	"caredesk.io/telehealth/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize bucket store (queries + notification feeds)
	buckets, err := store.NewBucketStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize bucket store: %v", err)
	}
	defer buckets.Close()

	// Broadcast hub: bucket writes fan out to open views over websocket
	hub := notify.NewHub()
	buckets.OnChange(hub.Publish)

	queryStore := store.NewQueryStore(buckets)
	feed := store.NewNotificationFeed(buckets)

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	queryService := core.NewQueryService(queryStore, feed, llmService)
	notificationService := core.NewNotificationService(feed)

	// Registration runs against Postgres and is optional: without a DSN
	// the endpoints report unavailable instead of blocking startup.
	var registrationService *registration.Service
	if dsn := config.AppConfig.PostgresDSN; dsn != "" {
		db, err := registration.OpenDatabase(dsn)
		if err != nil {
			log.Fatalf("Failed to initialize registration database: %v", err)
		}
		registrationService = registration.NewService(registration.NewPatientRepository(db))
		log.Println("Registration database connected")
	} else {
		log.Println("POSTGRES_DSN not set, registration endpoints disabled")
	}

	verifier := auth.NewGoogleVerifier()

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(queryService, notificationService, registrationService, verifier, hub)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
