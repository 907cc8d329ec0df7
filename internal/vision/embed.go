package vision

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Per-channel mean in B, G, R order.
var channelMeanBGR = [3]float32{91.4953, 103.8827, 131.0912}

// Extractor turns a preprocessed face tensor into an embedding.
type Extractor interface {
	Extract(input []float32) ([]float32, error)
}

// Preprocess builds the extractor input: resize to 224x224, native BGR
// order, float32, mean subtraction, NHWC with a batch of one.
func Preprocess(face *Frame) []float32 {
	img := face
	if img.Width != FaceSize || img.Height != FaceSize {
		img = img.Resize(FaceSize, FaceSize)
	}
	img = img.Convert(OrderBGR)

	out := make([]float32, FaceSize*FaceSize*3)
	for i := 0; i < len(out); i += 3 {
		out[i] = float32(img.Pix[i]) - channelMeanBGR[0]
		out[i+1] = float32(img.Pix[i+1]) - channelMeanBGR[1]
		out[i+2] = float32(img.Pix[i+2]) - channelMeanBGR[2]
	}
	return out
}

type EmbedderConfig struct {
	ModelPath    string
	InputName    string
	OutputName   string
	EmbeddingDim int
}

// Embedder runs the ResNet50 face feature model on ONNX Runtime.
// Output vectors are returned as produced; similarity is computed as cosine.
type Embedder struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	embDim       int
}

// NewEmbedder loads the model once. Failure is ErrModelUnavailable.
func NewEmbedder(cfg EmbedderConfig, opts *ort.SessionOptions) (*Embedder, error) {
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = 512
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, FaceSize, FaceSize, 3))
	if err != nil {
		return nil, fmt.Errorf("%w: create input tensor: %v", ErrModelUnavailable, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.EmbeddingDim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: create output tensor: %v", ErrModelUnavailable, err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: embedder session %s: %v", ErrModelUnavailable, cfg.ModelPath, err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		embDim:       cfg.EmbeddingDim,
	}, nil
}

// Extract runs the network on a tensor produced by Preprocess.
func (e *Embedder) Extract(input []float32) ([]float32, error) {
	if len(input) != FaceSize*FaceSize*3 {
		return nil, fmt.Errorf("extract: input has %d values, want %d", len(input), FaceSize*FaceSize*3)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, e.embDim)
	copy(embedding, e.outputTensor.GetData())
	return embedding, nil
}

// EmbeddingDim returns the embedding vector dimension.
func (e *Embedder) EmbeddingDim() int {
	return e.embDim
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}
