package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/storage"
)

// FramePublisher queues frame tasks for the tracking workers.
type FramePublisher interface {
	PublishFrame(ctx context.Context, task models.FrameTask) error
}

// ObjectStore receives captured frames.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// CameraStore resolves cameras and records their status.
type CameraStore interface {
	GetCamera(ctx context.Context, id uuid.UUID) (*models.Camera, error)
	UpdateCameraStatus(ctx context.Context, id uuid.UUID, status models.CameraStatus, errMsg string) error
}

// Capturer produces JPEG frames from a source until it ends or is stopped.
type Capturer interface {
	Run(ctx context.Context, src Source, fps, width int, callback FrameCallback) error
	Stop()
}

type activeCamera struct {
	cancel  context.CancelFunc
	capture Capturer
	done    chan struct{}
}

type ManagerConfig struct {
	FrameWidth int
	DefaultFPS int
	MaxRetries int
	// RetryBase is doubled on every attempt.
	RetryBase time.Duration
}

// Manager runs one capture loop per started camera.
type Manager struct {
	publisher FramePublisher
	objects   ObjectStore
	cameras   CameraStore
	cfg       ManagerConfig

	newCapture func() Capturer

	mu     sync.Mutex
	active map[uuid.UUID]*activeCamera
}

func NewManager(publisher FramePublisher, objects ObjectStore, cameras CameraStore, cfg ManagerConfig) *Manager {
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = 5
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Manager{
		publisher:  publisher,
		objects:    objects,
		cameras:    cameras,
		cfg:        cfg,
		newCapture: func() Capturer { return &FFmpegCapture{} },
		active:     make(map[uuid.UUID]*activeCamera),
	}
}

// HandleControl applies a start or stop command.
func (m *Manager) HandleControl(ctx context.Context, cmd models.CameraControl) error {
	switch cmd.Action {
	case "start":
		return m.Start(ctx, cmd.CameraID)
	case "stop":
		m.Stop(cmd.CameraID)
		return nil
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

// Start begins capturing a camera. Starting a running camera is an error.
func (m *Manager) Start(ctx context.Context, id uuid.UUID) error {
	cam, err := m.cameras.GetCamera(ctx, id)
	if err != nil {
		return fmt.Errorf("get camera %s: %w", id, err)
	}

	m.mu.Lock()
	if _, exists := m.active[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("camera %s already running", id)
	}
	camCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ac := &activeCamera{cancel: cancel, capture: m.newCapture(), done: make(chan struct{})}
	m.active[id] = ac
	m.mu.Unlock()

	fps := cam.FPS
	if fps <= 0 {
		fps = m.cfg.DefaultFPS
	}

	observability.ActiveCameras.Inc()
	m.updateStatus(id, models.CameraStatusStarting, "")
	slog.Info("starting camera capture", "camera_id", id, "name", cam.Name, "type", cam.CameraType, "fps", fps)

	go m.run(camCtx, cam, fps, ac)
	return nil
}

func (m *Manager) run(ctx context.Context, cam *models.Camera, fps int, ac *activeCamera) {
	defer func() {
		m.mu.Lock()
		delete(m.active, cam.ID)
		m.mu.Unlock()
		observability.ActiveCameras.Dec()
		close(ac.done)
		slog.Info("camera capture stopped", "camera_id", cam.ID)
	}()

	src := Source{Type: cam.CameraType, URL: cam.URL}
	capture := ac.capture
	var running sync.Once

	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.cfg.RetryBase << uint(attempt-1)
			slog.Warn("retrying camera capture", "camera_id", cam.ID, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				m.updateStatus(cam.ID, models.CameraStatusStopped, "")
				return
			case <-time.After(delay):
			}

			capture = m.newCapture()
			m.mu.Lock()
			ac.capture = capture
			m.mu.Unlock()
		}

		err := capture.Run(ctx, src, fps, m.cfg.FrameWidth, func(data []byte, capturedAt time.Time) error {
			running.Do(func() { m.updateStatus(cam.ID, models.CameraStatusRunning, "") })
			return m.publishFrame(ctx, cam.ID, data, capturedAt)
		})
		if err == nil || ctx.Err() != nil {
			m.updateStatus(cam.ID, models.CameraStatusStopped, "")
			return
		}
		slog.Error("camera capture failed", "camera_id", cam.ID, "attempt", attempt, "error", err)
	}

	m.updateStatus(cam.ID, models.CameraStatusError, "capture failed after retries")
}

func (m *Manager) publishFrame(ctx context.Context, cameraID uuid.UUID, data []byte, capturedAt time.Time) error {
	frameID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("frame id: %w", err)
	}
	key := storage.FrameKey(cameraID, frameID)
	if err := m.objects.PutObject(ctx, key, data, "image/jpeg"); err != nil {
		return fmt.Errorf("upload frame: %w", err)
	}

	task := models.FrameTask{
		CameraID:  cameraID,
		FrameID:   frameID,
		Timestamp: capturedAt,
		FrameRef:  key,
		Width:     m.cfg.FrameWidth,
	}
	if err := m.publisher.PublishFrame(ctx, task); err != nil {
		return fmt.Errorf("publish frame task: %w", err)
	}
	return nil
}

// Stop ends a camera's capture. Stopping an idle camera is a no-op.
func (m *Manager) Stop(id uuid.UUID) {
	m.mu.Lock()
	ac, exists := m.active[id]
	var capture Capturer
	if exists {
		capture = ac.capture
	}
	m.mu.Unlock()
	if !exists {
		return
	}

	capture.Stop()
	ac.cancel()
	slog.Info("stop requested", "camera_id", id)
}

func (m *Manager) updateStatus(id uuid.UUID, status models.CameraStatus, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.cameras.UpdateCameraStatus(ctx, id, status, errMsg); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("update camera status", "camera_id", id, "error", err)
	}
}

// ActiveCount returns the number of cameras being captured.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// StopAll stops every camera and waits for the loops to exit or ctx to end.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	running := make([]*activeCamera, 0, len(m.active))
	ids := make([]uuid.UUID, 0, len(m.active))
	for id, ac := range m.active {
		ids = append(ids, id)
		running = append(running, ac)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
	for _, ac := range running {
		select {
		case <-ac.done:
		case <-ctx.Done():
			return
		}
	}
}
