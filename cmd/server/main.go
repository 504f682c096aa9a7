package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/expenseapp/split-engine/internal/fx"
	"github.com/expenseapp/split-engine/internal/fx/provider"
	"github.com/expenseapp/split-engine/internal/metrics"
	"github.com/expenseapp/split-engine/internal/split"
	"github.com/expenseapp/split-engine/internal/store"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	baseCurrency := os.Getenv("BASE_CURRENCY")
	if baseCurrency == "" {
		baseCurrency = "INR"
	}

	// --- Initialize rate store ---
	var st store.RateStore
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := store.Migrate(dbURL); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}

		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 5*time.Minute)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory rate store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- FX providers, primary source first ---
	providers := buildProviders()

	probeDays := fx.DefaultProbeDays
	if v := os.Getenv("FX_PROBE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			probeDays = n
		}
	}

	// --- Rate update hub ---
	hub := fx.NewHub()
	go hub.Run()

	// --- Resolver, engine, services ---
	resolver := fx.NewResolver(st, baseCurrency, providers, probeDays, hub)
	fxSvc := fx.NewService(resolver)
	splitSvc := split.NewService(split.NewEngine(resolver))

	// --- Daily backfill ---
	backfillCtx, stopBackfill := context.WithCancel(context.Background())
	defer stopBackfill()
	if os.Getenv("FX_BACKFILL_ENABLED") == "true" {
		currencies := splitCSV(os.Getenv("FX_BACKFILL_CURRENCIES"))
		sched := fx.NewScheduler(resolver, currencies, 24*time.Hour)
		go sched.Run(backfillCtx)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS for frontend cross-origin requests.
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"split-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time rate updates.
		r.Get("/ws", hub.HandleWS)

		// Split allocation.
		r.Post("/split/simulate", splitSvc.Simulate)

		// FX rates.
		r.Get("/fx/base-currency", fxSvc.BaseCurrency)
		r.Put("/fx/rates", fxSvc.UpsertRate)
		r.Get("/fx/convert", fxSvc.Convert)
		r.Get("/fx/rates/history", fxSvc.History)
		r.Get("/fx/rates/used", fxSvc.RateUsed)
		r.Put("/fx/backfill", fxSvc.Backfill)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("split-engine listening", "port", port, "base_currency", baseCurrency)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopBackfill()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down split-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("split-engine stopped")
}

// buildProviders assembles the provider chain from FX_PROVIDERS (csv,
// default frankfurter + exchangerate.host). Open Exchange Rates joins only
// when OXR_APP_ID is set.
func buildProviders() []provider.Provider {
	names := splitCSV(os.Getenv("FX_PROVIDERS"))
	if len(names) == 0 {
		names = []string{"frankfurter", "exchangeratehost"}
	}

	var providers []provider.Provider
	for _, name := range names {
		switch name {
		case "frankfurter":
			providers = append(providers, provider.NewFrankfurter())
		case "exchangeratehost":
			providers = append(providers, provider.NewExchangerateHost())
		case "openexchangerates":
			appID := os.Getenv("OXR_APP_ID")
			if appID == "" {
				slog.Warn("openexchangerates requested but OXR_APP_ID not set, skipping")
				continue
			}
			providers = append(providers, provider.NewOpenExchangeRates(appID))
		default:
			slog.Warn("unknown fx provider, skipping", "name", name)
		}
	}

	if len(providers) == 0 {
		slog.Warn("no fx providers configured; unresolved rates fall back to parity")
	}
	return providers
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
