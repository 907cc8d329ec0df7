package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/attend/internal/api"
	"github.com/your-org/attend/internal/api/handlers"
	"github.com/your-org/attend/internal/api/ws"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/config"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting attendance API", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Models
	rt, err := vision.LoadRuntime(cfg.Vision)
	if err != nil {
		slog.Error("load vision runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// Gallery, refreshed from Postgres
	gallery := attendance.NewGalleryCache(db.LoadGallery)
	if err := gallery.Refresh(ctx); err != nil {
		slog.Warn("initial gallery load", "error", err)
	}
	go gallery.Run(ctx, cfg.Tracking.GalleryRefresh)

	ledger, err := attendance.NewLedger(cfg.Attendance.LedgerPath)
	if err != nil {
		slog.Error("open ledger", "error", err)
		os.Exit(1)
	}

	sessions := attendance.NewManager(rt.Engine, gallery,
		attendance.MultiSink{db, ledger, producer},
		db,
		attendance.ManagerConfig{
			Tracker: vision.TrackerConfig{
				HistorySize:         cfg.Tracking.HistorySize,
				ConfidenceThreshold: cfg.Tracking.ConfidenceThreshold,
				MemoryDuration:      cfg.Tracking.MemoryDuration,
			},
			RecognitionInterval: cfg.Tracking.RecognitionInterval,
		})

	// WebSocket hub, fed only from the ATTENDANCE stream
	hub := ws.NewHub()
	go hub.Run(ctx)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create attendance consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeAttendance(ctx, "api-attendance", func(ctx context.Context, ev models.AttendanceEvent) error {
		return hub.Append(ctx, ev.Record)
	})
	if err != nil {
		slog.Warn("start attendance consumer", "error", err)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Engine:   rt.Engine,
		Store:    db,
		Objects:  minioStore,
		Gallery:  gallery,
		Sessions: sessions,
		Control:  producer,
		Hub:      hub,
		Checks: map[string]handlers.Check{
			"postgres": db.Ping,
			"minio":    minioStore.Ping,
			"nats":     func(context.Context) error { return producer.Ping() },
		},
		SnapshotPath: cfg.Attendance.GalleryPath,
		DefaultFPS:   cfg.Vision.DefaultFPS,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	sessions.CloseAll(shutdownCtx, time.Now())
	cancel()

	slog.Info("API server stopped")
}
