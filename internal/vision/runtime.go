package vision

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/attend/internal/config"
)

// Runtime owns the ONNX environment and the models behind an Engine.
type Runtime struct {
	Engine   *Engine
	detector *Detector
	embedder *Embedder
}

// LoadRuntime initializes ONNX Runtime and loads both models. A detector
// failure is fatal. An embedder failure is not: the engine then validates
// captures but every extraction reports ErrModelUnavailable.
func LoadRuntime(cfg config.VisionConfig) (*Runtime, error) {
	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", err)
	}

	det, err := NewDetector(filepath.Join(cfg.ModelsDir, cfg.DetectorModel), float32(cfg.DetectionThreshold), nil)
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("load detector: %w", err)
	}

	rt := &Runtime{detector: det}
	var extractor Extractor
	emb, err := NewEmbedder(EmbedderConfig{
		ModelPath:    filepath.Join(cfg.ModelsDir, cfg.EmbedderModel),
		InputName:    cfg.EmbedderInput,
		OutputName:   cfg.EmbedderOutput,
		EmbeddingDim: cfg.EmbeddingDim,
	}, nil)
	if err != nil {
		slog.Error("embedding model unavailable", "error", err)
	} else {
		rt.embedder = emb
		extractor = emb
	}

	rt.Engine = NewEngine(det, extractor, EngineConfigFrom(cfg))
	return rt, nil
}

// EngineConfigFrom maps file configuration onto engine settings.
func EngineConfigFrom(cfg config.VisionConfig) EngineConfig {
	ec := DefaultEngineConfig()
	ec.Locator.MinConfidence = cfg.DetectionThreshold
	ec.Locator.EnrollMinConfidence = cfg.EnrollMinConfidence
	ec.Locator.EnrollMinFaceRatio = cfg.EnrollMinFaceRatio
	ec.Locator.EnrollMaxFaceRatio = cfg.EnrollMaxFaceRatio
	ec.MatchThreshold = cfg.MatchThreshold
	ec.RecognitionPadding = cfg.RecognitionPadding
	ec.Retries = cfg.Retries
	ec.RetryBackoff = cfg.RetryBackoff
	return ec
}

func (r *Runtime) Close() error {
	if r.embedder != nil {
		r.embedder.Close()
	}
	r.detector.Close()
	return ort.DestroyEnvironment()
}

// onnxLibPath honours ONNXRUNTIME_LIB, else the platform default name.
func onnxLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
