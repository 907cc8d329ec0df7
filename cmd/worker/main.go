package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/config"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/internal/vision"
)

// Frames older than this when dequeued are skipped.
const maxFrameAge = 10 * time.Second

// Camera sessions close after this long without frames.
const cameraIdle = 2 * time.Minute

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting attendance worker",
		"workers", cfg.Vision.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := vision.LoadRuntime(cfg.Vision)
	if err != nil {
		slog.Error("load vision runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()
	if !rt.Engine.Ready() {
		slog.Error("embedding model unavailable, worker cannot recognize")
		os.Exit(1)
	}

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

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

	manager := attendance.NewManager(rt.Engine, gallery,
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
	feeds := attendance.NewCameraFeeds(manager, cameraIdle)
	go feeds.Run(ctx, 30*time.Second)

	slog.Info("tracking pipeline initialized", "persons", gallery.Gallery().Size())

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeFrames(ctx, "attendance-workers", func(ctx context.Context, task models.FrameTask) error {
		if age := time.Since(task.Timestamp); age > maxFrameAge {
			slog.Debug("skip old frame", "camera_id", task.CameraID, "age", age.String())
			return nil
		}

		data, err := minioStore.GetObject(ctx, task.FrameRef)
		if err != nil {
			return fmt.Errorf("fetch frame %s: %w", task.FrameID, err)
		}
		frame, err := vision.DecodeFrame(data)
		if err != nil {
			slog.Warn("decode frame", "frame_id", task.FrameID, "error", err)
			return nil
		}

		res, err := feeds.Process(ctx, task.CameraID, frame, task.Timestamp)
		switch {
		case errors.Is(err, attendance.ErrStaleFrame), errors.Is(err, attendance.ErrSessionClosed):
			return nil
		case err != nil:
			// The next frame retries.
			slog.Warn("process frame", "camera_id", task.CameraID, "frame_id", task.FrameID, "error", err)
			return nil
		}
		if res.Marked != nil {
			slog.Info("attendance marked",
				"camera_id", task.CameraID,
				"person", res.Marked.PersonName,
				"confidence", res.Marked.Confidence,
			)
		}
		return nil
	}, cfg.Vision.WorkerCount)
	if err != nil {
		slog.Error("start frame consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	manager.CloseAll(closeCtx, time.Now())
	slog.Info("worker stopped")
}
