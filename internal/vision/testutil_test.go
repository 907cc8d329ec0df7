package vision

import (
	"errors"
	"sync"
)

type fakeDetector struct {
	mu       sync.Mutex
	dets     []RawDetection
	err      error
	failures int // leading calls that return errTransient
	calls    int
}

var errTransient = errors.New("transient detector failure")

func (f *fakeDetector) Detect(frame *Frame) ([]RawDetection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errTransient
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]RawDetection(nil), f.dets...), nil
}

type fakeExtractor struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeExtractor) Extract(input []float32) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.vec...), nil
}

func solidFrame(w, h int, order ChannelOrder, c0, c1, c2 uint8) *Frame {
	f := NewFrame(w, h, order)
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = c0, c1, c2
	}
	return f
}

// centeredFace is a level-eyed detection covering the given fraction of a frame.
func centeredFace(score float32, side float64) RawDetection {
	x := (1 - side) / 2
	return RawDetection{
		XMin:         x,
		YMin:         x,
		Width:        side,
		Height:       side,
		Score:        score,
		LeftEye:      Point{X: x + side*0.3, Y: x + side*0.4},
		RightEye:     Point{X: x + side*0.7, Y: x + side*0.4},
		HasKeypoints: true,
	}
}
