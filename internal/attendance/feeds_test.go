package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/vision"
)

func TestCameraFeeds_OneSessionPerCamera(t *testing.T) {
	rec := &scriptedRecognizer{results: []vision.Recognition{seen("Alice", 0.9, 100)}}
	sink := &memorySink{}
	m := NewManager(rec, staticGallery{}, sink, nil, testManagerConfig())
	feeds := NewCameraFeeds(m, time.Minute)
	ctx := context.Background()
	frame := vision.NewFrame(4, 4, vision.OrderRGB)

	camA, camB := uuid.New(), uuid.New()
	for i := 0; i < 6; i++ {
		at := t0.Add(time.Duration(i) * 100 * time.Millisecond)
		if _, err := feeds.Process(ctx, camA, frame, at); err != nil {
			t.Fatalf("camera A frame %d: %v", i, err)
		}
		if _, err := feeds.Process(ctx, camB, frame, at); err != nil {
			t.Fatalf("camera B frame %d: %v", i, err)
		}
	}

	if len(m.List()) != 2 {
		t.Fatalf("sessions = %d, want 2", len(m.List()))
	}
	sa, ok := feeds.Session(camA)
	if !ok || sa.CameraID == nil || *sa.CameraID != camA {
		t.Fatalf("camera A session = %+v", sa)
	}
	// Alice is marked once in each camera's session.
	if got := sink.names(); len(got) != 2 {
		t.Errorf("marks = %v, want one per camera", got)
	}
}

func TestCameraFeeds_DropsStaleFrames(t *testing.T) {
	m := NewManager(&scriptedRecognizer{}, staticGallery{}, nil, nil, testManagerConfig())
	feeds := NewCameraFeeds(m, time.Minute)
	ctx := context.Background()
	frame := vision.NewFrame(4, 4, vision.OrderRGB)
	cam := uuid.New()

	if _, err := feeds.Process(ctx, cam, frame, t0.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := feeds.Process(ctx, cam, frame, t0); !errors.Is(err, ErrStaleFrame) {
		t.Errorf("older frame err = %v, want ErrStaleFrame", err)
	}
	if _, err := feeds.Process(ctx, cam, frame, t0.Add(time.Second)); err != nil {
		t.Errorf("same timestamp should be accepted: %v", err)
	}
}

func TestCameraFeeds_ReapClosesIdle(t *testing.T) {
	store := &fakeSessionStore{}
	m := NewManager(&scriptedRecognizer{}, staticGallery{}, nil, store, testManagerConfig())
	feeds := NewCameraFeeds(m, 30*time.Second)
	ctx := context.Background()
	frame := vision.NewFrame(4, 4, vision.OrderRGB)

	idle, busy := uuid.New(), uuid.New()
	if _, err := feeds.Process(ctx, idle, frame, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := feeds.Process(ctx, busy, frame, t0.Add(50*time.Second)); err != nil {
		t.Fatal(err)
	}

	if n := feeds.Reap(ctx, t0.Add(time.Minute)); n != 1 {
		t.Fatalf("reaped = %d, want 1", n)
	}
	if _, ok := feeds.Session(idle); ok {
		t.Error("idle camera still has a session")
	}
	if _, ok := feeds.Session(busy); !ok {
		t.Error("busy camera lost its session")
	}
	if len(store.ended) != 1 {
		t.Errorf("ended = %v", store.ended)
	}

	// A new frame reopens the camera.
	if _, err := feeds.Process(ctx, idle, frame, t0.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if len(m.List()) != 2 {
		t.Errorf("sessions = %d, want 2", len(m.List()))
	}
}

// gatedRecognizer blocks the first call until release is closed and records
// the width of every frame it sees.
type gatedRecognizer struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	widths []int
}

func (r *gatedRecognizer) Recognize(_ context.Context, f *vision.Frame, _ vision.Gallery) (vision.Recognition, error) {
	r.mu.Lock()
	r.widths = append(r.widths, f.Width)
	first := len(r.widths) == 1
	r.mu.Unlock()
	if first {
		close(r.entered)
		<-r.release
	}
	return vision.Recognition{}, nil
}

func (r *gatedRecognizer) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.widths...)
}

func TestCameraFeeds_SerializesFramesPerCamera(t *testing.T) {
	rec := &gatedRecognizer{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(rec, staticGallery{}, nil, nil, testManagerConfig())
	feeds := NewCameraFeeds(m, time.Minute)
	ctx := context.Background()
	cam := uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = feeds.Process(ctx, cam, vision.NewFrame(1, 4, vision.OrderRGB), t0.Add(time.Second))
	}()
	<-rec.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = feeds.Process(ctx, cam, vision.NewFrame(2, 4, vision.OrderRGB), t0.Add(2*time.Second))
	}()

	time.Sleep(50 * time.Millisecond)
	if got := rec.seen(); len(got) != 1 {
		t.Fatalf("second frame entered recognition while the first was running: %v", got)
	}
	close(rec.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("frame %d: %v", i, err)
		}
	}
	if got := rec.seen(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("recognition order = %v, want [1 2]", got)
	}
}
