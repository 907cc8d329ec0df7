package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/vision"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)

type memorySink struct {
	mu      sync.Mutex
	records []models.AttendanceRecord
	err     error
	calls   int
}

func (s *memorySink) Append(_ context.Context, rec models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.PersonName)
	}
	return out
}

func TestDebouncer_MarksOncePerSession(t *testing.T) {
	sink := &memorySink{}
	sid := uuid.New()
	d := NewDebouncer(sid, 0.65, sink)
	ctx := context.Background()

	rec, err := d.Consider(ctx, "Alice", 1, t0)
	if err != nil || rec == nil {
		t.Fatalf("first Consider = %v, %v", rec, err)
	}
	if rec.SessionID != sid || rec.PersonName != "Alice" || !rec.MarkedAt.Equal(t0) {
		t.Errorf("record = %+v", rec)
	}

	for i := 1; i <= 3; i++ {
		rec, err = d.Consider(ctx, "Alice", 1, t0.Add(time.Duration(i)*time.Minute))
		if err != nil || rec != nil {
			t.Fatalf("repeat Consider = %v, %v", rec, err)
		}
	}
	if got := sink.names(); len(got) != 1 {
		t.Errorf("sink records = %v, want one", got)
	}
	if !d.Attended("Alice") || d.Attended("Bob") {
		t.Error("Attended mismatch")
	}
}

func TestDebouncer_Ignores(t *testing.T) {
	tests := []struct {
		name       string
		person     string
		confidence float64
	}{
		{name: "unknown", person: vision.UnknownName, confidence: 1},
		{name: "identifying", person: vision.IdentifyingLabel, confidence: 1},
		{name: "empty", person: "", confidence: 1},
		{name: "below threshold", person: "Alice", confidence: 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{}
			d := NewDebouncer(uuid.New(), 0.65, sink)
			rec, err := d.Consider(context.Background(), tt.person, tt.confidence, t0)
			if err != nil || rec != nil {
				t.Errorf("Consider = %v, %v, want nil, nil", rec, err)
			}
			if sink.calls != 0 {
				t.Error("sink should not be called")
			}
		})
	}
}

func TestDebouncer_ThresholdIsInclusive(t *testing.T) {
	d := NewDebouncer(uuid.New(), 0.6, &memorySink{})
	if rec, _ := d.Consider(context.Background(), "Alice", 0.6, t0); rec == nil {
		t.Error("confidence equal to the threshold should mark")
	}
}

func TestDebouncer_SinkFailureRetries(t *testing.T) {
	boom := errors.New("disk full")
	sink := &memorySink{err: boom}
	d := NewDebouncer(uuid.New(), 0.65, sink)

	rec, err := d.Consider(context.Background(), "Alice", 1, t0)
	if !errors.Is(err, boom) || rec != nil {
		t.Fatalf("Consider = %v, %v, want sink error", rec, err)
	}
	if d.Attended("Alice") {
		t.Fatal("failed write must not mark the person")
	}

	sink.err = nil
	rec, err = d.Consider(context.Background(), "Alice", 1, t0.Add(time.Second))
	if err != nil || rec == nil {
		t.Fatalf("retry Consider = %v, %v", rec, err)
	}
}

func TestDebouncer_ConcurrentCallsMarkOnce(t *testing.T) {
	sink := &memorySink{}
	d := NewDebouncer(uuid.New(), 0.65, sink)

	var wg sync.WaitGroup
	var mu sync.Mutex
	marked := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := d.Consider(context.Background(), "Alice", 0.9, t0)
			if err != nil {
				t.Error(err)
			}
			if rec != nil {
				mu.Lock()
				marked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if marked != 1 || sink.calls != 1 {
		t.Errorf("marked = %d, sink calls = %d, want 1 and 1", marked, sink.calls)
	}
}

func TestDebouncer_Present(t *testing.T) {
	d := NewDebouncer(uuid.New(), 0.5, nil)
	for _, n := range []string{"Cara", "Abe", "Bea"} {
		if _, err := d.Consider(context.Background(), n, 1, t0); err != nil {
			t.Fatal(err)
		}
	}
	got := d.Present()
	if len(got) != 3 || got[0] != "Abe" || got[2] != "Cara" {
		t.Errorf("Present = %v", got)
	}
}

func TestMultiSink(t *testing.T) {
	rec := models.AttendanceRecord{PersonName: "Alice", MarkedAt: t0}

	t.Run("primary failure stops fan-out", func(t *testing.T) {
		primary := &memorySink{err: errors.New("down")}
		secondary := &memorySink{}
		if err := (MultiSink{primary, secondary}).Append(context.Background(), rec); err == nil {
			t.Fatal("expected primary error")
		}
		if secondary.calls != 0 {
			t.Error("secondary called after primary failure")
		}
	})

	t.Run("secondary failure is not an error", func(t *testing.T) {
		primary := &memorySink{}
		broken := &memorySink{err: errors.New("no subscribers")}
		last := &memorySink{}
		if err := (MultiSink{primary, broken, last}).Append(context.Background(), rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if len(primary.records) != 1 || len(last.records) != 1 {
			t.Error("every healthy sink should receive the record")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if err := (MultiSink{}).Append(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	})
}
