package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arnvgh/semspend-be/internal/api"
	"github.com/arnvgh/semspend-be/internal/auth"
	"github.com/arnvgh/semspend-be/internal/config"
	"github.com/arnvgh/semspend-be/internal/database"
	"github.com/arnvgh/semspend-be/internal/logger"
	"github.com/arnvgh/semspend-be/internal/monitoring"
	"github.com/arnvgh/semspend-be/internal/services"
	"github.com/arnvgh/semspend-be/internal/websocket"
)

func main() {
	logger.Init()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	authSvc := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db, eventService, hub)
	expenseService := services.NewExpenseService(db, eventService, hub)

	// Set up and run the background stat updater
	statUpdater := monitoring.NewStatUpdater(eventService, cfg.StatInterval)
	go statUpdater.Run()

	// Set up and run the background ledger auditor
	auditor, err := monitoring.NewAuditor(db, eventService, cfg.AuditSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger auditor")
	}
	go auditor.Run()

	// Set up router
	router := api.NewRouter(cfg.AllowedOrigins, authSvc, hub, userService, expenseService, eventService, statUpdater)

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	statUpdater.Stop()
	auditor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
