package vision

import (
	"fmt"
)

// Detection is a located face in pixel space with normalized eye keypoints.
type Detection struct {
	Box          BoundingBox `json:"box"`
	Confidence   float32     `json:"confidence"`
	LeftEye      Point       `json:"leftEye"`
	RightEye     Point       `json:"rightEye"`
	HasKeypoints bool        `json:"-"`
	// FaceRatio is face area over frame area, from the unclamped box.
	FaceRatio float64 `json:"faceRatio"`
}

type LocatorConfig struct {
	MinConfidence       float64
	EnrollMinConfidence float64
	EnrollMinFaceRatio  float64
	EnrollMaxFaceRatio  float64
}

func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		MinConfidence:       0.5,
		EnrollMinConfidence: 0.7,
		EnrollMinFaceRatio:  0.05,
		EnrollMaxFaceRatio:  0.7,
	}
}

// Locator layers tracking and enrollment policy over a FaceDetector.
type Locator struct {
	detector FaceDetector
	cfg      LocatorConfig
}

func NewLocator(detector FaceDetector, cfg LocatorConfig) *Locator {
	return &Locator{detector: detector, cfg: cfg}
}

// Locate returns the highest-confidence face at or above MinConfidence, or
// nil when there is none. Other faces are ignored.
func (l *Locator) Locate(frame *Frame) (*Detection, error) {
	dets, err := l.significant(frame)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, nil
	}
	best := 0
	for i := range dets {
		if dets[i].Score > dets[best].Score {
			best = i
		}
	}
	d := toDetection(dets[best], frame.Width, frame.Height)
	return &d, nil
}

// Validate checks an enrollment capture: exactly one face, reasonably framed,
// confidently detected.
func (l *Locator) Validate(frame *Frame) (*Detection, error) {
	dets, err := l.significant(frame)
	if err != nil {
		return nil, err
	}
	switch {
	case len(dets) == 0:
		return nil, reject(ErrNoFace, "No face detected in the image")
	case len(dets) > 1:
		return nil, reject(ErrMultipleFaces, "Multiple faces detected, please capture only one face")
	}

	d := toDetection(dets[0], frame.Width, frame.Height)
	if d.FaceRatio < l.cfg.EnrollMinFaceRatio {
		return nil, reject(ErrFaceTooSmall, "Face is too small in the image, please move closer")
	}
	if d.FaceRatio > l.cfg.EnrollMaxFaceRatio {
		return nil, reject(ErrFaceTooLarge, "Face is too large in the image, please move back")
	}
	if float64(d.Confidence) < l.cfg.EnrollMinConfidence {
		return nil, reject(ErrLowConfidence, "Face detection confidence is too low, please try with better lighting")
	}
	return &d, nil
}

func (l *Locator) significant(frame *Frame) ([]RawDetection, error) {
	if frame == nil || frame.Width == 0 || frame.Height == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	raw, err := l.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	out := raw[:0:0]
	for _, r := range raw {
		if float64(r.Score) >= l.cfg.MinConfidence {
			out = append(out, r)
		}
	}
	return out, nil
}

func toDetection(r RawDetection, frameW, frameH int) Detection {
	box := BoundingBox{
		X:      int(r.XMin * float64(frameW)),
		Y:      int(r.YMin * float64(frameH)),
		Width:  int(r.Width * float64(frameW)),
		Height: int(r.Height * float64(frameH)),
	}
	ratio := 0.0
	if frameW > 0 && frameH > 0 {
		ratio = float64(box.Width*box.Height) / float64(frameW*frameH)
	}
	return Detection{
		Box:          ClampBox(box, frameW, frameH),
		Confidence:   r.Score,
		LeftEye:      r.LeftEye,
		RightEye:     r.RightEye,
		HasKeypoints: r.HasKeypoints,
		FaceRatio:    ratio,
	}
}
