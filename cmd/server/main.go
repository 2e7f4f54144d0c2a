package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anontester/ripweb/internal/config"
	"github.com/anontester/ripweb/internal/events"
	"github.com/anontester/ripweb/internal/httpapp"
	"github.com/anontester/ripweb/internal/logger"
	"github.com/anontester/ripweb/internal/registry"
	"github.com/anontester/ripweb/internal/ripper"
	"github.com/anontester/ripweb/internal/settings"
	"github.com/anontester/ripweb/internal/store"
)

func main() {
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		appLogger.Error("Failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	// Initialize DB
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	savedRepo := store.NewSavedRepo(db)
	historyRepo := store.NewHistoryRepo(db)
	settingsMgr := settings.NewManager(store.NewSettingsRepo(db))

	appSettings := settingsMgr.LoadAppSettings()
	appLogger.SetDebug(appSettings.DebugLogging)

	// The port stored in app settings applies unless PORT is set explicitly.
	port := cfg.Port
	if _, explicit := os.LookupEnv("PORT"); !explicit && appSettings.Port > 0 {
		port = strconv.Itoa(appSettings.Port)
	}

	// Initialize event fan-out and the queue core
	broker := events.NewBroker(appLogger)
	defer broker.Close()

	// TODO: replace the mock with the streamrip executor bridge once its
	// RPC surface is settled.
	rip := &ripper.MockRipper{StepDelay: 200 * time.Millisecond}

	reg, err := registry.NewRegistry(rip, savedRepo, historyRepo, broker, cfg.MaxConcurrent, appLogger)
	if err != nil {
		appLogger.Error("Failed to init registry", "error", err)
		os.Exit(1)
	}
	reg.Start()
	defer reg.Stop()

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Routes
	h := httpapp.NewHandler(reg, rip, settingsMgr, broker, appLogger)
	h.RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exiting")
}
