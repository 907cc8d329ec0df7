package vision

import (
	"errors"
)

var (
	// ErrDecode reports malformed image bytes or base64 payloads.
	ErrDecode = errors.New("decode image")
	// ErrNoFace means no usable face was found. Live tracking reports it as a
	// nil detection instead.
	ErrNoFace        = errors.New("no face detected")
	ErrMultipleFaces = errors.New("multiple faces detected")
	ErrFaceTooSmall  = errors.New("face too small")
	ErrFaceTooLarge  = errors.New("face too large")
	ErrLowConfidence = errors.New("face detection confidence too low")
	// ErrModelUnavailable is fatal for extraction until the model is reloaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrAlignment never leaves the normalizer; it triggers the unaligned fallback.
	ErrAlignment = errors.New("alignment failed")
)

// RejectionError is returned by enrollment validation. Message is meant for
// the person standing in front of the camera.
type RejectionError struct {
	Reason  error
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

func reject(reason error, msg string) *RejectionError {
	return &RejectionError{Reason: reason, Message: msg}
}

// RejectionReason maps a validation error to a short metric label.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNoFace):
		return "no_face"
	case errors.Is(err, ErrMultipleFaces):
		return "multiple_faces"
	case errors.Is(err, ErrFaceTooSmall):
		return "too_small"
	case errors.Is(err, ErrFaceTooLarge):
		return "too_large"
	case errors.Is(err, ErrLowConfidence):
		return "low_confidence"
	case errors.Is(err, ErrDecode):
		return "decode"
	default:
		return "other"
	}
}
