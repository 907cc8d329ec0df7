package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/internal/vision"
	"github.com/your-org/attend/pkg/dto"
)

// FaceEngine is the part of vision.Engine the HTTP layer uses.
type FaceEngine interface {
	Ready() bool
	Validate(frame *vision.Frame) (*vision.Detection, error)
	EnrollImage(ctx context.Context, frame *vision.Frame) (vision.Embedding, *vision.Detection, error)
	Recognize(ctx context.Context, frame *vision.Frame, gallery vision.Gallery) (vision.Recognition, error)
}

// EmbeddingStore persists enrolled embeddings.
type EmbeddingStore interface {
	AddEmbeddings(ctx context.Context, name string, embeddings []models.FaceEmbedding) error
	LoadGallery(ctx context.Context) (vision.Gallery, error)
}

// ObjectStore keeps enrollment source images.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObjects(ctx context.Context, keys []string) error
}

// GalleryUpdater is the in-process gallery shared with live sessions.
type GalleryUpdater interface {
	Gallery() vision.Gallery
	Add(name string, embs []vision.Embedding)
	Remove(name string)
}

var enrollExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

type FaceHandler struct {
	engine  FaceEngine
	store   EmbeddingStore
	objects ObjectStore
	gallery GalleryUpdater
	// SnapshotPath, when set, receives the gallery after every enrollment.
	SnapshotPath string
}

func NewFaceHandler(engine FaceEngine, store EmbeddingStore, objects ObjectStore, gallery GalleryUpdater) *FaceHandler {
	return &FaceHandler{engine: engine, store: store, objects: objects, gallery: gallery}
}

type pendingPerson struct {
	name   string
	images []dto.EnrollmentImage
}

// ProcessImages enrolls uploaded captures. Failures of single images are
// reported in the logs and do not stop the batch.
func (h *FaceHandler) ProcessImages(c *gin.Context) {
	var req dto.ProcessImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Images) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No images provided"})
		return
	}
	if !h.engine.Ready() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load embedding model"})
		return
	}

	ctx := c.Request.Context()
	logs := []string{"Starting image processing..."}

	var persons []*pendingPerson
	byName := map[string]*pendingPerson{}
	for _, img := range req.Images {
		p, ok := byName[img.PersonName]
		if !ok {
			p = &pendingPerson{name: img.PersonName}
			byName[img.PersonName] = p
			persons = append(persons, p)
		}
		p.images = append(p.images, img)
	}
	logs = append(logs, fmt.Sprintf("Found images for %d persons", len(persons)))

	embeddings := make(map[string][][]float32, len(persons))
	total := 0
	for _, p := range persons {
		if strings.TrimSpace(p.name) == "" {
			logs = append(logs, fmt.Sprintf("Skipping %d images without a person name", len(p.images)))
			continue
		}
		embeddings[p.name] = [][]float32{}
		logs = append(logs, fmt.Sprintf("Processing %d images for: %s", len(p.images), p.name))

		var enrolled []models.FaceEmbedding
		for _, img := range p.images {
			fe, msg := h.enrollOne(ctx, p.name, img)
			logs = append(logs, msg)
			if fe != nil {
				enrolled = append(enrolled, *fe)
			}
		}
		if len(enrolled) == 0 {
			continue
		}

		// A failed save still returns the vectors and keeps them live until
		// the next gallery refresh.
		if err := h.store.AddEmbeddings(ctx, p.name, enrolled); err != nil {
			slog.Error("save embeddings", "person", p.name, "error", err)
			logs = append(logs, fmt.Sprintf("Failed to save embeddings for %s: %v", p.name, err))
		}

		embs := make([]vision.Embedding, len(enrolled))
		for i, fe := range enrolled {
			embs[i] = fe.Embedding
			embeddings[p.name] = append(embeddings[p.name], fe.Embedding)
		}
		h.gallery.Add(p.name, embs)
		total += len(enrolled)
	}

	logs = append(logs, fmt.Sprintf("Processed %d face images for %d persons", total, len(persons)))

	if h.SnapshotPath != "" {
		logs = append(logs, fmt.Sprintf("Saving embeddings to %s...", h.SnapshotPath))
		if err := storage.SaveGallery(h.SnapshotPath, h.gallery.Gallery()); err != nil {
			slog.Warn("save gallery snapshot", "path", h.SnapshotPath, "error", err)
			logs = append(logs, fmt.Sprintf("Failed to save embeddings: %v", err))
		} else {
			logs = append(logs, "Embeddings saved successfully!")
		}
	}

	slog.Info("enrollment batch processed", "persons", len(persons), "embeddings", total)
	c.JSON(http.StatusOK, dto.ProcessImagesResponse{
		Logs:       logs,
		Embeddings: embeddings,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

func (h *FaceHandler) enrollOne(ctx context.Context, person string, img dto.EnrollmentImage) (*models.FaceEmbedding, string) {
	contentType, ok := enrollExtensions[strings.ToLower(filepath.Ext(img.ImageName))]
	if !ok {
		return nil, fmt.Sprintf("  Skipped unsupported file: %s", img.ImageName)
	}

	data, err := vision.DecodeBase64(img.ImageData)
	if err != nil {
		return nil, fmt.Sprintf("  Error processing %s: %v", img.ImageName, err)
	}
	frame, err := vision.DecodeFrame(data)
	if err != nil {
		return nil, fmt.Sprintf("  Could not read image: %s", img.ImageName)
	}

	emb, det, err := h.engine.EnrollImage(ctx, frame)
	if err != nil {
		var rej *vision.RejectionError
		if errors.As(err, &rej) {
			return nil, fmt.Sprintf("  %s: %s", img.ImageName, rej.Message)
		}
		return nil, fmt.Sprintf("  Error processing %s: %v", img.ImageName, err)
	}

	fe := &models.FaceEmbedding{Embedding: emb, Quality: det.Confidence}
	key := storage.EnrollmentKey(person, img.ImageName)
	if err := h.objects.PutObject(ctx, key, data, contentType); err != nil {
		slog.Warn("store enrollment image", "key", key, "error", err)
	} else {
		fe.SourceKey = key
	}
	return fe, fmt.Sprintf("  Processed: %s", img.ImageName)
}

// RecognizeFace matches one image against a caller-supplied gallery. Once the
// request is valid, failures are reported as Unknown with status 200.
func (h *FaceHandler) RecognizeFace(c *gin.Context) {
	var req dto.RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}
	if len(req.Embeddings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No embeddings provided"})
		return
	}
	if !h.engine.Ready() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load embedding model"})
		return
	}

	frame, err := vision.DecodeBase64Frame(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to decode image"})
		return
	}

	resp := dto.RecognizeResponse{RecognizedName: vision.UnknownName}
	rec, err := h.engine.Recognize(c.Request.Context(), frame, vision.Gallery(req.Embeddings))
	switch {
	case err != nil:
		slog.Error("recognition failed", "error", err)
		resp.Error = "Recognition error occurred"
	case !rec.Found:
		resp.Message = "No face detected in the image"
	default:
		resp.RecognizedName = rec.Match.Name
		resp.Similarity = rec.Match.Similarity
		resp.AllSimilarities = rec.Match.All
	}
	resp.Timestamp = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, resp)
}

// ValidateFace runs the enrollment capture checks on one image.
func (h *FaceHandler) ValidateFace(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}

	frame, err := vision.DecodeBase64Frame(req.Image)
	if err != nil {
		c.JSON(http.StatusOK, dto.ValidateResponse{Valid: false, Message: "Failed to decode image"})
		return
	}

	if _, err := h.engine.Validate(frame); err != nil {
		var rej *vision.RejectionError
		if errors.As(err, &rej) {
			c.JSON(http.StatusOK, dto.ValidateResponse{Valid: false, Message: rej.Message})
			return
		}
		slog.Error("validate face", "error", err)
		c.JSON(http.StatusOK, dto.ValidateResponse{Valid: false, Message: "Error processing image"})
		return
	}
	c.JSON(http.StatusOK, dto.ValidateResponse{Valid: true, Message: "Face detected successfully"})
}

// LatestEmbeddings returns the persisted gallery.
func (h *FaceHandler) LatestEmbeddings(c *gin.Context) {
	g, err := h.store.LoadGallery(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(g) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No embeddings found"})
		return
	}
	c.JSON(http.StatusOK, dto.EmbeddingsResponse{
		Embeddings: g,
		Persons:    len(g),
		Total:      g.Size(),
	})
}
