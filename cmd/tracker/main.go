package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/steps/internal/config"
	"example.com/steps/internal/health"
	persistence "example.com/steps/internal/persistence/postgres"
	"example.com/steps/internal/queue"
	"example.com/steps/internal/reconcile"
	"example.com/steps/internal/scheduler"
	"example.com/steps/internal/sensor"
	"example.com/steps/internal/tracker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool, cfg.DefaultStepGoal)

	syncQueue, err := queue.Open(cfg.QueuePath)
	if err != nil {
		log.Fatalf("failed to open sync queue: %v", err)
	}
	defer syncQueue.Close()

	var healthSource reconcile.HealthSource
	if cfg.HealthAPIURL != "" {
		healthSource = health.NewClient(cfg.HealthAPIURL, cfg.HealthAPIToken, cfg.HealthAPITimeout)
	}

	opts := reconcile.Options{
		UpdateCeiling: cfg.UpdateCeiling,
		DailyCeiling:  cfg.DailyCeiling,
		SyncThreshold: cfg.SyncThreshold,
		Location:      cfg.Location(),
	}
	tr := tracker.New(repo, healthSource, syncQueue, repo, cfg.DefaultStepGoal, opts)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.SensorGroupID,
		Topic:           cfg.SensorTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})

	proc := sensor.NewProcessor(reader, tr)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("tracker metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()

		log.Printf("tracker started (topic=%s, group=%s)", cfg.SensorTopic, cfg.SensorGroupID)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("tracker stopped with error: %v", err)
		}
	}()

	syncTask := scheduler.New("sync", cfg.SyncInterval, func(ctx context.Context) error {
		return tr.SyncAll(ctx, false)
	})
	syncTask.Start(ctx)

	// SIGCONT after a suspension: re-read authoritative totals before trusting
	// the in-memory state again.
	resume := make(chan os.Signal, 1)
	signal.Notify(resume, syscall.SIGCONT)
	go func() {
		for range resume {
			log.Println("process resumed, reconciling all users")
			tr.ResumeAll(ctx)
		}
	}()

	<-stop
	log.Println("tracker shutdown requested")
	cancel()

	syncTask.Stop()

	// Backgrounding flush: seal whatever each reconciler is holding.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	tr.Shutdown(flushCtx)
	flushCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
}
