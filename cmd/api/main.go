package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/coachsync/internal/api"
	"example.com/coachsync/internal/cache"
	"example.com/coachsync/internal/config"
	"example.com/coachsync/internal/domain"
	persistence "example.com/coachsync/internal/persistence/postgres"
	"example.com/coachsync/internal/provider/strava"
	syncengine "example.com/coachsync/internal/sync"
	httptransport "example.com/coachsync/internal/transport/http"
)

func main() {
	cfg := config.Load()
	if err := cfg.ValidateProvider(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	provider, err := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret,
		strava.WithBaseURL(cfg.StravaBaseURL),
		strava.WithOAuthURL(cfg.StravaOAuthURL),
		strava.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)
	if err != nil {
		log.Fatalf("failed to build provider client: %v", err)
	}

	connections := persistence.NewConnectionRepo(pool)
	intents := persistence.NewIntentRepo(pool)
	activities := persistence.NewActivityRepo(pool)
	calendar := persistence.NewCalendarRepo(pool)
	profiles := persistence.NewProfileRepo(pool, cache.NewMemory[domain.AccountProfile](cfg.ProfileCacheTTL))

	tokens := syncengine.NewTokenManager(provider, connections)
	ingestor := syncengine.NewIngestor(activities)
	matcher := syncengine.NewMatcher(calendar, profiles, cfg.MatchAdjacentDays)
	backoff := syncengine.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax}

	runner := syncengine.NewRunner(intents, connections, provider, tokens, ingestor, matcher, backoff, syncengine.RunnerConfig{
		BatchSize:    cfg.SyncBatchSize,
		LeaseTimeout: cfg.SyncLeaseTimeout,
		MaxAttempts:  cfg.SyncMaxAttempts,
		LookbackDays: cfg.SweepLookbackDays,
		PageSize:     cfg.FetchPageSize,
	})

	handler := api.NewHandler(runner, cfg.SyncSecret)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress}, logger(mux))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("sync-engine listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
