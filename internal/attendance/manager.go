package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/vision"
)

// SessionStore persists session lifecycles. Optional.
type SessionStore interface {
	CreateSession(ctx context.Context, s models.Session) error
	EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}

type ManagerConfig struct {
	Tracker             vision.TrackerConfig
	RecognitionInterval int
}

// Manager owns the open sessions of one process.
type Manager struct {
	engine  Recognizer
	gallery GallerySource
	sink    Sink
	store   SessionStore
	cfg     ManagerConfig

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Processor
}

func NewManager(engine Recognizer, gallery GallerySource, sink Sink, store SessionStore, cfg ManagerConfig) *Manager {
	return &Manager{
		engine:   engine,
		gallery:  gallery,
		sink:     sink,
		store:    store,
		cfg:      cfg,
		sessions: make(map[uuid.UUID]*Processor),
	}
}

// Open starts a session. cameraID is nil for sessions fed through the API.
func (m *Manager) Open(ctx context.Context, name string, cameraID *uuid.UUID, now time.Time) (*Processor, error) {
	tcfg := m.cfg.Tracker
	if cameraID != nil {
		tcfg.IDPrefix = cameraID.String()[:8] + "_"
	}
	s := NewSession(uuid.New(), name, tcfg, m.sink, now)
	s.CameraID = cameraID

	if m.store != nil {
		if err := m.store.CreateSession(ctx, s.Model()); err != nil {
			s.Close(now)
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}

	label := "api"
	if cameraID != nil {
		label = cameraID.String()
	}
	p := NewProcessor(s, m.engine, m.gallery, m.cfg.RecognitionInterval, label)

	m.mu.Lock()
	m.sessions[s.ID] = p
	m.mu.Unlock()

	slog.Info("session opened", "session_id", s.ID, "name", name)
	return p, nil
}

func (m *Manager) Get(id uuid.UUID) (*Processor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.sessions[id]
	return p, ok
}

// List returns open sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, p := range m.sessions {
		out = append(out, p.Session())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Close ends and forgets a session. It reports whether the session was open.
func (m *Manager) Close(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	p, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	p.Session().Close(now)
	slog.Info("session closed", "session_id", id, "present", len(p.Session().Debouncer().Present()))

	if m.store != nil {
		if err := m.store.EndSession(ctx, id, now); err != nil {
			return true, fmt.Errorf("persist session end: %w", err)
		}
	}
	return true, nil
}

// CloseAll ends every open session.
func (m *Manager) CloseAll(ctx context.Context, now time.Time) {
	m.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if _, err := m.Close(ctx, id, now); err != nil {
			slog.Warn("close session", "session_id", id, "error", err)
		}
	}
}
