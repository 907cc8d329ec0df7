package vision

import (
	"fmt"
	"math"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// RawDetection is detector output in normalized [0,1] frame coordinates.
type RawDetection struct {
	XMin, YMin    float64
	Width, Height float64
	Score         float32
	// Image-left and image-right eye.
	LeftEye, RightEye Point
	HasKeypoints      bool
}

// FaceDetector returns every face found in a frame, highest score first.
type FaceDetector interface {
	Detect(frame *Frame) ([]RawDetection, error)
}

// Detector runs RetinaFace (det_10g) on ONNX Runtime.
type Detector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// NewDetector loads the RetinaFace model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// scores, boxes, landmarks for strides 8/16/32; no batch dimension.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}
	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("%w: detector session: %v", ErrModelUnavailable, err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect runs the network and returns NMS-filtered detections sorted by score.
func (d *Detector) Detect(frame *Frame) ([]RawDetection, error) {
	if frame == nil || frame.Width == 0 || frame.Height == 0 {
		return nil, fmt.Errorf("detect: empty frame")
	}
	input := detectorInput(frame, d.inputW, d.inputH)

	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.inputTensor.GetData(), input)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	boxes := d.parseDetections()
	boxes = nms(boxes, 0.4)

	out := make([]RawDetection, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, b.normalized(float64(d.inputW), float64(d.inputH)))
	}
	return out, nil
}

// pixelDetection is a decoded anchor in network input coordinates.
type pixelDetection struct {
	box       [4]float32 // x1, y1, x2, y2
	score     float32
	landmarks [5][2]float32
}

func (p pixelDetection) normalized(w, h float64) RawDetection {
	return RawDetection{
		XMin:         float64(p.box[0]) / w,
		YMin:         float64(p.box[1]) / h,
		Width:        float64(p.box[2]-p.box[0]) / w,
		Height:       float64(p.box[3]-p.box[1]) / h,
		Score:        p.score,
		LeftEye:      Point{X: float64(p.landmarks[0][0]) / w, Y: float64(p.landmarks[0][1]) / h},
		RightEye:     Point{X: float64(p.landmarks[1][0]) / w, Y: float64(p.landmarks[1][1]) / h},
		HasKeypoints: true,
	}
}

func (d *Detector) parseDetections() []pixelDetection {
	var dets []pixelDetection
	fw, fh := float32(d.inputW), float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		bboxes := d.outputTensors[si+3].GetData()
		landmarks := d.outputTensors[si+6].GetData()

		fmW := d.inputW / stride
		fmH := d.inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if scores[idx] >= d.threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = ax + landmarks[idx*10+li*2]*st
							lm[li][1] = ay + landmarks[idx*10+li*2+1]*st
						}

						dets = append(dets, pixelDetection{
							box: [4]float32{
								clampF(ax-bboxes[idx*4+0]*st, 0, fw),
								clampF(ay-bboxes[idx*4+1]*st, 0, fh),
								clampF(ax+bboxes[idx*4+2]*st, 0, fw),
								clampF(ay+bboxes[idx*4+3]*st, 0, fh),
							},
							score:     scores[idx],
							landmarks: lm,
						})
					}
					idx++
				}
			}
		}
	}
	return dets
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// detectorInput stretches the frame to the network size and lays it out as
// normalized RGB CHW.
func detectorInput(frame *Frame, w, h int) []float32 {
	resized := frame.Convert(OrderRGB).Resize(w, h)
	plane := w * h
	data := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		data[i] = (float32(resized.Pix[i*3]) - 127.5) / 128
		data[plane+i] = (float32(resized.Pix[i*3+1]) - 127.5) / 128
		data[2*plane+i] = (float32(resized.Pix[i*3+2]) - 127.5) / 128
	}
	return data
}

func nms(dets []pixelDetection, iouThreshold float32) []pixelDetection {
	if len(dets) == 0 {
		return dets
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].score > dets[j].score
	})

	keep := make([]bool, len(dets))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(dets); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if keep[j] && iou(dets[i].box, dets[j].box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []pixelDetection
	for i, d := range dets {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	inter := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
