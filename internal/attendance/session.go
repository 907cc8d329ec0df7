package attendance

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/vision"
)

// Session is one attendance-taking run: a tracker and a debouncer that live
// and die together. Nothing is shared between sessions.
type Session struct {
	ID        uuid.UUID
	Name      string
	CameraID  *uuid.UUID
	StartedAt time.Time

	tracker   *vision.Tracker
	debouncer *Debouncer

	mu      sync.Mutex
	endedAt *time.Time
}

func NewSession(id uuid.UUID, name string, cfg vision.TrackerConfig, sink Sink, now time.Time) *Session {
	observability.ActiveSessions.Inc()
	return &Session{
		ID:        id,
		Name:      name,
		StartedAt: now,
		tracker:   vision.NewTracker(cfg),
		debouncer: NewDebouncer(id, cfg.ConfidenceThreshold, sink),
	}
}

func (s *Session) Tracker() *vision.Tracker {
	return s.tracker
}

func (s *Session) Debouncer() *Debouncer {
	return s.debouncer
}

// Close drops tracked faces. It is safe to call more than once.
func (s *Session) Close(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt != nil {
		return
	}
	s.endedAt = &now
	s.tracker.Reset()
	observability.TrackedFaces.DeleteLabelValues(s.ID.String())
	observability.ActiveSessions.Dec()
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt != nil
}

// Model returns the persisted form of the session.
func (s *Session) Model() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := models.Session{
		ID:        s.ID,
		Name:      s.Name,
		CameraID:  s.CameraID,
		Status:    models.SessionStatusActive,
		StartedAt: s.StartedAt,
	}
	if s.endedAt != nil {
		m.Status = models.SessionStatusClosed
		ended := *s.endedAt
		m.EndedAt = &ended
	}
	return m
}
