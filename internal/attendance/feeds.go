package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/vision"
)

// ErrStaleFrame is returned for a frame captured before the newest frame
// already accepted from the same camera.
var ErrStaleFrame = errors.New("stale frame")

// CameraFeeds runs one session per camera, opened on the first frame and
// closed after the camera has been idle.
type CameraFeeds struct {
	manager *Manager
	idle    time.Duration

	mu    sync.Mutex
	feeds map[uuid.UUID]*feed
}

type feed struct {
	proc *Processor

	// order is held from the staleness check through ProcessFrame so frames
	// of one camera reach the tracker in capture order.
	order sync.Mutex
	last  time.Time // guarded by CameraFeeds.mu
}

func NewCameraFeeds(manager *Manager, idle time.Duration) *CameraFeeds {
	return &CameraFeeds{manager: manager, idle: idle, feeds: make(map[uuid.UUID]*feed)}
}

// Process feeds one camera frame captured at capturedAt into the camera's session.
func (c *CameraFeeds) Process(ctx context.Context, cameraID uuid.UUID, frame *vision.Frame, capturedAt time.Time) (FrameResult, error) {
	c.mu.Lock()
	f, ok := c.feeds[cameraID]
	if !ok {
		proc, err := c.manager.Open(ctx, "camera "+cameraID.String(), &cameraID, capturedAt)
		if err != nil {
			c.mu.Unlock()
			return FrameResult{}, fmt.Errorf("open session for camera %s: %w", cameraID, err)
		}
		f = &feed{proc: proc}
		c.feeds[cameraID] = f
	}
	c.mu.Unlock()

	f.order.Lock()
	defer f.order.Unlock()

	c.mu.Lock()
	if capturedAt.Before(f.last) {
		c.mu.Unlock()
		return FrameResult{}, ErrStaleFrame
	}
	f.last = capturedAt
	c.mu.Unlock()

	return f.proc.ProcessFrame(ctx, frame, capturedAt)
}

// Session returns the open session of a camera.
func (c *CameraFeeds) Session(cameraID uuid.UUID) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.feeds[cameraID]
	if !ok {
		return nil, false
	}
	return f.proc.Session(), true
}

// Reap closes the sessions of cameras with no frame since now-idle and
// returns how many were closed.
func (c *CameraFeeds) Reap(ctx context.Context, now time.Time) int {
	c.mu.Lock()
	var stale []uuid.UUID
	for cam, f := range c.feeds {
		if now.Sub(f.last) > c.idle {
			stale = append(stale, f.proc.Session().ID)
			delete(c.feeds, cam)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		if _, err := c.manager.Close(ctx, id, now); err != nil {
			slog.Warn("close idle camera session", "session_id", id, "error", err)
		}
	}
	return len(stale)
}

// Run reaps idle feeds every interval until ctx is done.
func (c *CameraFeeds) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := c.Reap(ctx, now); n > 0 {
				slog.Info("closed idle camera sessions", "count", n)
			}
		}
	}
}
