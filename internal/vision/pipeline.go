package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/attend/internal/observability"
)

type EngineConfig struct {
	Locator            LocatorConfig
	MatchThreshold     float64
	RecognitionPadding float64
	// Retries bounds detection/extraction attempts on transient errors.
	Retries      int
	RetryBackoff time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Locator:            DefaultLocatorConfig(),
		MatchThreshold:     0.4,
		RecognitionPadding: 0.2,
		Retries:            3,
		RetryBackoff:       100 * time.Millisecond,
	}
}

// Engine wires locate -> normalize -> extract -> match.
type Engine struct {
	locator    *Locator
	enrollNorm *Normalizer
	liveNorm   *Normalizer
	extractor  Extractor
	matcher    *Matcher
	cfg        EngineConfig
}

// NewEngine builds an engine around an owned detector and extractor. A nil
// extractor makes every extraction fail with ErrModelUnavailable.
func NewEngine(detector FaceDetector, extractor Extractor, cfg EngineConfig) *Engine {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	return &Engine{
		locator:    NewLocator(detector, cfg.Locator),
		enrollNorm: NewNormalizer(0),
		liveNorm:   NewNormalizer(cfg.RecognitionPadding),
		extractor:  extractor,
		matcher:    NewMatcher(cfg.MatchThreshold),
		cfg:        cfg,
	}
}

func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// Ready reports whether the extractor loaded.
func (e *Engine) Ready() bool {
	return e.extractor != nil
}

// Validate applies the enrollment capture checks without extracting.
func (e *Engine) Validate(frame *Frame) (*Detection, error) {
	return e.locator.Validate(frame)
}

// EnrollImage validates an enrollment capture and returns its embedding.
func (e *Engine) EnrollImage(ctx context.Context, frame *Frame) (Embedding, *Detection, error) {
	if e.extractor == nil {
		return nil, nil, ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	det, err := e.locator.Validate(frame)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.EnrollmentRejections.WithLabelValues(RejectionReason(err)).Inc()
		return nil, nil, err
	}

	face, err := e.enrollNorm.Normalize(frame, det)
	if err != nil {
		return nil, nil, err
	}

	emb, err := e.extract(face)
	if err != nil {
		return nil, nil, err
	}
	return emb, det, nil
}

// Recognition is the outcome of one recognition attempt. Found is false when
// no face was located; that is not an error.
type Recognition struct {
	Found     bool
	Detection *Detection
	Embedding Embedding
	Aligned   bool
	Match     MatchResult
}

// Recognize locates the best face, embeds the padded aligned crop and matches
// it against the gallery.
func (e *Engine) Recognize(ctx context.Context, frame *Frame, gallery Gallery) (Recognition, error) {
	rec, err := e.Embed(ctx, frame)
	if err != nil || !rec.Found {
		return rec, err
	}

	start := time.Now()
	rec.Match = e.matcher.Match(rec.Embedding, gallery)
	observability.InferenceDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	return rec, nil
}

// Embed runs locate, normalize and extract with bounded retries on transient
// failures. A definitive "no face" returns Found=false immediately.
func (e *Engine) Embed(ctx context.Context, frame *Frame) (Recognition, error) {
	if e.extractor == nil {
		return Recognition{}, ErrModelUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Recognition{}, ctx.Err()
			case <-time.After(e.cfg.RetryBackoff):
			}
		}

		rec, err := e.embedOnce(frame)
		if err == nil {
			return rec, nil
		}
		if !retryable(err) {
			return Recognition{}, err
		}
		lastErr = err
		slog.Debug("recognition attempt failed", "attempt", attempt, "error", err)
	}
	return Recognition{}, fmt.Errorf("recognize after %d attempts: %w", e.cfg.Retries, lastErr)
}

func (e *Engine) embedOnce(frame *Frame) (Recognition, error) {
	start := time.Now()
	det, err := e.locator.Locate(frame)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return Recognition{}, err
	}
	if det == nil {
		return Recognition{Found: false}, nil
	}

	face, err := e.liveNorm.Normalize(frame, det)
	if errors.Is(err, ErrNoFace) {
		return Recognition{Found: false}, nil
	}
	if err != nil {
		return Recognition{}, err
	}

	emb, err := e.extract(face)
	if err != nil {
		return Recognition{}, err
	}
	return Recognition{Found: true, Detection: det, Embedding: emb, Aligned: face.Aligned}, nil
}

func (e *Engine) extract(face NormalizedFace) (Embedding, error) {
	start := time.Now()
	input := Preprocess(face.Frame)
	emb, err := e.extractor.Extract(input)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	return emb, nil
}

func retryable(err error) bool {
	return !errors.Is(err, ErrModelUnavailable) &&
		!errors.Is(err, ErrDecode) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
