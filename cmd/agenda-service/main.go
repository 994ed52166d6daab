package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kolenda/agenda-service/internal/config"
	"kolenda/agenda-service/internal/httpapi"
	"kolenda/agenda-service/internal/schedule"
	"kolenda/agenda-service/internal/store/postgres"
	"kolenda/agenda-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("agenda-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	scheduleMinutes, err := store.LoadScheduleMinutes(loadCtx)
	loadCancel()
	if err != nil {
		log.Printf("load schedule minutes: %v", err)
	}

	estimator := schedule.NewEstimator(schedule.EstimatorOptions{
		MinutesPerVisit: cfg.MinutesPerVisit,
		ScheduleMinutes: scheduleMinutes,
	})

	handler := httpapi.NewHandler(store, estimator)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		ParishPerMinute:   cfg.ParishRateLimitPerMinute,
		ParishBurst:       cfg.ParishRateLimitBurst,
		EstimatePerMinute: cfg.EstimateRateLimitPerMinute,
		EstimateBurst:     cfg.EstimateRateLimitBurst,
	})

	chain := httpapi.AuthMiddleware(store, handler.Routes())
	chain = limiter.Middleware(chain)
	chain = httpapi.LoggingMiddleware(chain)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(chain, "agenda-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("agenda-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if cfg.AutoSuspendGrace <= 0 || cfg.AutoSuspendInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.AutoSuspendInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			count, err := store.AutoSuspend(ctx, cfg.AutoSuspendGrace, cfg.AutoSuspendBatchSize)
			cancel()
			if err != nil {
				log.Printf("auto suspend error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("auto suspend parked %d visits", count)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
