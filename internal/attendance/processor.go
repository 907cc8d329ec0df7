package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
	"github.com/your-org/attend/internal/vision"
)

// ErrSessionClosed is returned for frames sent to a closed session.
var ErrSessionClosed = errors.New("session closed")

// Recognizer is the slice of vision.Engine the processor needs.
type Recognizer interface {
	Recognize(ctx context.Context, frame *vision.Frame, gallery vision.Gallery) (vision.Recognition, error)
}

// GallerySource supplies the current gallery for each recognition.
type GallerySource interface {
	Gallery() vision.Gallery
}

// FrameResult is the tracking state after one frame.
type FrameResult struct {
	FrameIndex int                      `json:"frameIndex"`
	Processed  bool                     `json:"processed"`
	Faces      []vision.TrackedFace     `json:"faces"`
	Evicted    []string                 `json:"evicted,omitempty"`
	Match      *vision.MatchResult      `json:"match,omitempty"`
	Marked     *models.AttendanceRecord `json:"marked,omitempty"`
}

// Processor feeds a session one frame at a time. Recognition runs on every
// interval-th frame; eviction runs on every frame.
type Processor struct {
	session  *Session
	engine   Recognizer
	gallery  GallerySource
	interval int
	label    string

	mu     sync.Mutex
	frames int
}

// NewProcessor binds a session to an engine. label names the frame source in
// metrics.
func NewProcessor(session *Session, engine Recognizer, gallery GallerySource, interval int, label string) *Processor {
	if interval <= 0 {
		interval = 1
	}
	return &Processor{
		session:  session,
		engine:   engine,
		gallery:  gallery,
		interval: interval,
		label:    label,
	}
}

func (p *Processor) Session() *Session {
	return p.session
}

// ProcessFrame advances the session by one frame captured at now.
func (p *Processor) ProcessFrame(ctx context.Context, frame *vision.Frame, now time.Time) (res FrameResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session.Closed() {
		return FrameResult{}, ErrSessionClosed
	}

	tracker := p.session.Tracker()
	res.Evicted = tracker.Sweep(now)

	p.frames++
	res.FrameIndex = p.frames
	observability.FramesProcessed.WithLabelValues(p.label).Inc()

	defer func() {
		res.Faces = tracker.Faces()
		observability.TrackedFaces.WithLabelValues(p.session.ID.String()).Set(float64(len(res.Faces)))
	}()

	if p.frames%p.interval != 0 {
		return res, nil
	}
	res.Processed = true

	rec, err := p.engine.Recognize(ctx, frame, p.gallery.Gallery())
	if err != nil {
		return res, fmt.Errorf("recognize frame %d: %w", p.frames, err)
	}
	if !rec.Found {
		return res, nil
	}

	observability.FacesDetected.WithLabelValues(p.label).Inc()
	if rec.Match.Known() {
		observability.FacesRecognized.WithLabelValues(p.label).Inc()
	}
	match := rec.Match
	res.Match = &match

	face := tracker.Update(rec.Detection.Box, rec.Match.Name, rec.Match.Similarity, now)
	if face.State != vision.StateNamed {
		return res, nil
	}

	res.Marked, err = p.session.Debouncer().Consider(ctx, face.Label(), face.Confidence, now)
	return res, err
}
