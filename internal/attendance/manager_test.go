package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/vision"
)

type fakeSessionStore struct {
	created []models.Session
	ended   []uuid.UUID
	err     error
}

func (s *fakeSessionStore) CreateSession(_ context.Context, m models.Session) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, m)
	return nil
}

func (s *fakeSessionStore) EndSession(_ context.Context, id uuid.UUID, _ time.Time) error {
	s.ended = append(s.ended, id)
	return nil
}

func testManagerConfig() ManagerConfig {
	return ManagerConfig{Tracker: vision.DefaultTrackerConfig(), RecognitionInterval: 1}
}

func TestManager_Lifecycle(t *testing.T) {
	store := &fakeSessionStore{}
	m := NewManager(&scriptedRecognizer{}, staticGallery{}, nil, store, testManagerConfig())
	ctx := context.Background()

	p, err := m.Open(ctx, "Morning lecture", nil, t0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := p.Session().ID
	if len(store.created) != 1 || store.created[0].Status != models.SessionStatusActive {
		t.Errorf("persisted = %+v", store.created)
	}

	if got, ok := m.Get(id); !ok || got != p {
		t.Error("Get should return the opened processor")
	}
	if len(m.List()) != 1 {
		t.Errorf("List = %d sessions", len(m.List()))
	}

	closed, err := m.Close(ctx, id, t0.Add(time.Hour))
	if err != nil || !closed {
		t.Fatalf("Close = %v, %v", closed, err)
	}
	if _, ok := m.Get(id); ok {
		t.Error("closed session still registered")
	}
	if !p.Session().Closed() || p.Session().Model().Status != models.SessionStatusClosed {
		t.Error("session not closed")
	}
	if len(store.ended) != 1 || store.ended[0] != id {
		t.Errorf("ended = %v", store.ended)
	}

	if closed, _ := m.Close(ctx, id, t0); closed {
		t.Error("second Close should report false")
	}
}

func TestManager_OpenFailsWhenStoreFails(t *testing.T) {
	store := &fakeSessionStore{err: errors.New("no db")}
	m := NewManager(&scriptedRecognizer{}, staticGallery{}, nil, store, testManagerConfig())

	if _, err := m.Open(context.Background(), "x", nil, t0); err == nil {
		t.Fatal("expected error")
	}
	if len(m.List()) != 0 {
		t.Error("failed session must not be registered")
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager(&scriptedRecognizer{}, staticGallery{}, nil, nil, testManagerConfig())
	cam := uuid.New()
	for i := 0; i < 3; i++ {
		if _, err := m.Open(context.Background(), "s", &cam, t0.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	list := m.List()
	if !list[0].StartedAt.Before(list[2].StartedAt) {
		t.Error("List should be ordered by start time")
	}

	m.CloseAll(context.Background(), t0.Add(time.Minute))
	if len(m.List()) != 0 {
		t.Error("sessions remain after CloseAll")
	}
	for _, s := range list {
		if !s.Closed() {
			t.Errorf("session %s still open", s.ID)
		}
	}
}

func TestGalleryCache(t *testing.T) {
	loads := 0
	c := NewGalleryCache(func(context.Context) (vision.Gallery, error) {
		loads++
		if loads > 1 {
			return nil, errors.New("db down")
		}
		return vision.Gallery{"Alice": {{1, 0}}}, nil
	})

	if len(c.Gallery()) != 0 {
		t.Error("new cache should be empty")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := c.Gallery()
	if len(before["Alice"]) != 1 {
		t.Fatalf("gallery = %v", before)
	}

	if err := c.Refresh(context.Background()); err == nil {
		t.Error("expected refresh error")
	}
	if len(c.Gallery()["Alice"]) != 1 {
		t.Error("failed refresh should keep the previous gallery")
	}

	c.Add("Alice", []vision.Embedding{{0, 1}})
	c.Add("Bob", []vision.Embedding{{1, 1}})
	if len(before["Alice"]) != 1 {
		t.Error("Add mutated a gallery already handed out")
	}
	g := c.Gallery()
	if len(g["Alice"]) != 2 || len(g["Bob"]) != 1 {
		t.Errorf("after Add: %v", g)
	}

	c.Remove("Alice")
	if _, ok := c.Gallery()["Alice"]; ok {
		t.Error("Remove did not drop Alice")
	}
}
