package attendance

import (
	"context"
	"log/slog"

	"github.com/your-org/attend/internal/models"
)

// Sink receives each attendance record exactly once.
type Sink interface {
	Append(ctx context.Context, rec models.AttendanceRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec models.AttendanceRecord) error

func (f SinkFunc) Append(ctx context.Context, rec models.AttendanceRecord) error {
	return f(ctx, rec)
}

// MultiSink fans a record out to several sinks. The first sink is the system
// of record and its error is returned; the rest are notifications whose
// failures are only logged.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, rec models.AttendanceRecord) error {
	if len(m) == 0 {
		return nil
	}
	if err := m[0].Append(ctx, rec); err != nil {
		return err
	}
	for _, s := range m[1:] {
		if err := s.Append(ctx, rec); err != nil {
			slog.Warn("attendance notification failed", "person", rec.PersonName, "error", err)
		}
	}
	return nil
}
