// house-lab - house buying experiment server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/house-lab/internal/api"
	"github.com/ashureev/house-lab/internal/catalog"
	"github.com/ashureev/house-lab/internal/config"
	"github.com/ashureev/house-lab/internal/engine"
	"github.com/ashureev/house-lab/internal/events"
	"github.com/ashureev/house-lab/internal/experiment"
	"github.com/ashureev/house-lab/internal/identity"
	"github.com/ashureev/house-lab/internal/middleware"
	"github.com/ashureev/house-lab/internal/simulation"
	"github.com/ashureev/house-lab/internal/store"
	"github.com/ashureev/house-lab/internal/sweeper"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const maxSimulationBuyers = 10000

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreBackend)

	// Initialize dependencies.
	repo, err := store.Open(cfg.StoreBackend, cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected")

	cat := catalog.Default()
	eng, err := engine.New(cat, engine.Options{
		RoundBudgets:   cfg.Experiment.RoundBudgets,
		CandidateCount: cfg.Experiment.CandidateCount,
		Policy:         cfg.Experiment.BudgetPolicy,
		CheckLimit:     cfg.Experiment.CheckAllowance,
	})
	if err != nil {
		slog.Error("Failed to initialize round engine", "error", err)
		os.Exit(1)
	}
	opts := eng.Options()
	sim, err := simulation.New(cat, simulation.Options{
		RoundBudgets:   opts.RoundBudgets,
		CandidateCount: opts.CandidateCount,
	})
	if err != nil {
		slog.Error("Failed to initialize simulator", "error", err)
		os.Exit(1)
	}
	slog.Info("Experiment configured",
		"catalog_size", cat.Len(),
		"round_budgets", opts.RoundBudgets,
		"candidate_count", opts.CandidateCount,
		"budget_policy", opts.Policy,
		"check_allowance", opts.CheckLimit)

	// Initialize services.
	hub := events.NewHub(originPatterns(cfg.CORSOrigins))
	svc := experiment.NewService(eng, sim, repo, hub, cfg.Experiment.Buyers)

	// Initialize handlers.
	baseHandler := api.NewHandler(svc, repo)
	experimentHandler := api.NewExperimentHandler(baseHandler, hub)
	simulationHandler := api.NewSimulationHandler(baseHandler, maxSimulationBuyers)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	baseHandler.RegisterHealth(r)

	experimentHandler.RegisterRoutes(r)
	simulationHandler.RegisterRoutes(r)

	// Websocket subscribers stay connected, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start session sweeper.
	sw := sweeper.New(ctx, repo, svc, cfg.SessionTTL)
	if err := sw.Register(cfg.SweepSchedule); err != nil {
		slog.Error("Failed to schedule session sweeper", "error", err)
		os.Exit(1)
	}
	sw.Start()
	defer sw.Stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// originPatterns converts CORS origins into the host patterns the websocket
// handshake checks against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			slog.Warn("Ignoring malformed CORS origin for websocket", "origin", o)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
