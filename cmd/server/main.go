package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Interne packages
	"crm-automation-api/internal/api"
	"crm-automation-api/internal/app"
	"crm-automation-api/internal/config"
	"crm-automation-api/internal/database"
	"crm-automation-api/internal/logger"
	"crm-automation-api/internal/preset"

	// Externe packages
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	// 1. Laad configuratie (.env)
	config.LoadDotEnv()

	// 1.5. Initialiseer logger
	log, err := logger.NewLogger()
	if err != nil {
		panic("Could not initialize logger: " + err.Error()) // Can't log if logger fails
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}
	if err := cfg.RequireServer(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Maak verbinding met de Database
	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("could not connect to the database", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	// 2.5. Voer migraties uit
	if err := database.RunMigrations(ctx, pool, cfg.RunMigrations, log); err != nil {
		log.Error("database migrations failed", zap.Error(err))
		os.Exit(1)
	}

	server, application, err := run(ctx, cfg, log, pool)
	if err != nil {
		log.Error("could not start application", zap.Error(err))
		os.Exit(1)
	}

	go func() {
		log.Info("starting API server", zap.String("addr", server.Addr), zap.String("component", "main"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("could not start server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", zap.String("component", "main"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	if err := application.Close(shutdownCtx); err != nil {
		log.Warn("monitor tick still running at shutdown", zap.Error(err))
	}
}

// run bouwt de applicatie op en hervat monitors die in de database actief
// staan. Het start de HTTP server niet zelf.
func run(ctx context.Context, cfg config.Config, log *zap.Logger, db database.Querier) (*http.Server, *app.App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	application, err := app.New(cfg, log, db, reg)
	if err != nil {
		return nil, nil, err
	}

	resumed, err := application.Guard.AutoStart(ctx)
	if err != nil {
		// Een monitor die niet hervat kan worden houdt de API niet tegen.
		log.Error("could not resume all monitors", zap.Error(err), zap.String("component", "main"))
	}
	log.Info("monitors resumed", zap.Strings("monitors", resumed), zap.String("component", "main"))

	var check func(context.Context) error
	if p, ok := db.(pinger); ok {
		check = p.Ping
	}

	apiServer := api.NewServer(api.Deps{
		Store:          application.Store,
		Executor:       application.Engine,
		Monitors:       application.Guard,
		Presets:        preset.Defaults(),
		Health:         check,
		Gatherer:       reg,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.APIPort),
		Handler:      apiServer.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.ActionTimeout + 30*time.Second, // execute en scan draaien synchroon
		IdleTimeout:  120 * time.Second,
	}
	return server, application, nil
}
