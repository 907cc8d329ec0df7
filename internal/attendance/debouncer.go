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
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/vision"
)

// Debouncer emits at most one attendance record per person per session.
type Debouncer struct {
	mu        sync.Mutex
	sessionID uuid.UUID
	threshold float64
	sink      Sink
	attended  map[string]time.Time
}

func NewDebouncer(sessionID uuid.UUID, threshold float64, sink Sink) *Debouncer {
	return &Debouncer{
		sessionID: sessionID,
		threshold: threshold,
		sink:      sink,
		attended:  make(map[string]time.Time),
	}
}

// Consider marks name present if it is a real identity with enough vote
// confidence and has not been marked in this session. It returns the new
// record, or nil when nothing was marked. A sink failure leaves the person
// unmarked so a later frame can retry.
func (d *Debouncer) Consider(ctx context.Context, name string, confidence float64, now time.Time) (*models.AttendanceRecord, error) {
	if !markable(name) || confidence < d.threshold {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.attended[name]; ok {
		return nil, nil
	}

	rec := models.AttendanceRecord{
		ID:         uuid.New(),
		SessionID:  d.sessionID,
		PersonName: name,
		Confidence: confidence,
		MarkedAt:   now,
	}
	if d.sink != nil {
		if err := d.sink.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("record attendance for %s: %w", name, err)
		}
	}

	d.attended[name] = now
	observability.AttendanceMarked.Inc()
	slog.Info("attendance marked", "session_id", d.sessionID, "person", name, "confidence", confidence)
	return &rec, nil
}

// Attended reports whether name has been marked in this session.
func (d *Debouncer) Attended(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.attended[name]
	return ok
}

// Present returns the marked names in sorted order.
func (d *Debouncer) Present() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.attended))
	for name := range d.attended {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func markable(name string) bool {
	return name != "" && name != vision.UnknownName && name != vision.IdentifyingLabel
}
