package vision

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/your-org/attend/internal/observability"
)

// FaceSize is the square input size of the embedding network.
const FaceSize = 224

// NormalizedFace is an aligned face crop ready for Preprocess.
type NormalizedFace struct {
	Frame   *Frame
	Box     BoundingBox
	Aligned bool
}

// Normalizer aligns a detected face on its eye line and crops it.
// Padding is the per-side fraction applied to the box (0 for enrollment).
type Normalizer struct {
	Padding float64
	Size    int
}

func NewNormalizer(padding float64) *Normalizer {
	return &Normalizer{Padding: padding, Size: FaceSize}
}

// Normalize never fails on alignment; it falls back to the unaligned crop.
// It only errors when the box itself is empty.
func (n *Normalizer) Normalize(frame *Frame, det *Detection) (NormalizedFace, error) {
	if frame == nil || det == nil {
		return NormalizedFace{}, ErrNoFace
	}

	box := ClampBox(det.Box, frame.Width, frame.Height)
	if n.Padding > 0 {
		box = box.Pad(n.Padding, frame.Width, frame.Height)
	}
	if box.Empty() {
		return NormalizedFace{}, fmt.Errorf("%w: empty face box", ErrNoFace)
	}

	face, err := alignedCrop(frame, det, box)
	aligned := err == nil
	if err != nil {
		slog.Debug("face alignment fell back to unaligned crop", "error", err)
		observability.AlignmentFallbacks.Inc()
		face = frame.Crop(box)
	}

	size := n.Size
	if size <= 0 {
		size = FaceSize
	}
	// Two reversals: to RGB, then back to the network's BGR.
	out := face.Resize(size, size).Convert(OrderRGB).SwapChannels()

	return NormalizedFace{Frame: out, Box: box, Aligned: aligned}, nil
}

// alignedCrop rotates the whole frame about the eye midpoint so the eyes are
// level, then re-crops the unchanged box.
func alignedCrop(frame *Frame, det *Detection, box BoundingBox) (*Frame, error) {
	if !det.HasKeypoints {
		return nil, fmt.Errorf("%w: no eye keypoints", ErrAlignment)
	}

	lx, ly := det.LeftEye.Pixel(frame.Width, frame.Height)
	rx, ry := det.RightEye.Pixel(frame.Width, frame.Height)
	if lx == rx && ly == ry {
		return nil, fmt.Errorf("%w: coincident eye keypoints", ErrAlignment)
	}

	angle := math.Atan2(float64(ry-ly), float64(rx-lx)) * 180 / math.Pi
	// Integer midpoint, floor division.
	cx := floorDiv(lx+rx, 2)
	cy := floorDiv(ly+ry, 2)

	rotated := frame.Rotate(float64(cx), float64(cy), angle)
	crop := rotated.Crop(box)
	if crop.Width == 0 || crop.Height == 0 {
		return nil, fmt.Errorf("%w: empty aligned crop", ErrAlignment)
	}
	return crop, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
