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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/stihelp/orchestrator/internal/adapter/llm"
	"github.com/stihelp/orchestrator/internal/config"
	"github.com/stihelp/orchestrator/internal/coordinator"
	"github.com/stihelp/orchestrator/internal/dialogue"
	"github.com/stihelp/orchestrator/internal/escalation"
	"github.com/stihelp/orchestrator/internal/governor"
	"github.com/stihelp/orchestrator/internal/policy"
	"github.com/stihelp/orchestrator/internal/registry"
	"github.com/stihelp/orchestrator/internal/service"
	"github.com/stihelp/orchestrator/internal/store"
	handler "github.com/stihelp/orchestrator/internal/transport/http"
	"github.com/stihelp/orchestrator/internal/validate"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting support orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Completion URL: %s", cfg.CompletionURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize completion client
	completionClient := llm.NewClient(cfg.CompletionURL, cfg.CompletionAPIKey, cfg.CallTimeout)

	// Initialize content guard
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	validator, err := validate.New(policyEngine, validate.Config{
		MaxReplyLen:        cfg.MaxReplyLen,
		AllowedLinkDomains: cfg.AllowedLinkDomains,
	})
	if err != nil {
		log.Fatalf("Failed to initialize validator: %v", err)
	}

	// Event log doubles as the governor's forensic recorder.
	events := service.NewEventLog(db)

	gov := governor.New(governor.Config{
		Window:            cfg.RateWindow,
		MaxCallsPerWindow: cfg.MaxCallsPerWindow,
		FailureThreshold:  cfg.FailureThreshold,
		CooldownBase:      cfg.CooldownBase,
		CooldownMax:       cfg.CooldownMax,
		CallTimeout:       cfg.CallTimeout,
		GlobalRate:        rate.Limit(cfg.GlobalRate),
		GlobalBurst:       cfg.GlobalBurst,
	}, events)

	// Initialize service
	svc := service.New(service.Config{DefaultLocale: cfg.DefaultLocale},
		db,
		service.NewMemorySessionStore(cfg.SessionTTL),
		registry.New(db),
		coordinator.New(cfg.LockTimeout, cfg.DuplicateWindow, cfg.MaxProcessedIDs),
		validator,
		dialogue.NewRegistry(gov, completionClient),
		escalation.New(db),
		events,
	)

	// Initialize handler
	h := handler.NewHandler(svc)

	// Create Echo server
	server := echo.New()
	server.HideBanner = true

	// Middleware
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(server)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
