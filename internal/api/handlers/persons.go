package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/pkg/dto"
)

type PersonStore interface {
	ListPersons(ctx context.Context) ([]models.PersonSummary, error)
	DeletePerson(ctx context.Context, name string) ([]string, error)
}

type PersonHandler struct {
	store   PersonStore
	objects ObjectStore
	gallery GalleryUpdater
	// SnapshotPath, when set, is rewritten after a deletion.
	SnapshotPath string
}

func NewPersonHandler(store PersonStore, objects ObjectStore, gallery GalleryUpdater) *PersonHandler {
	return &PersonHandler{store: store, objects: objects, gallery: gallery}
}

func (h *PersonHandler) List(c *gin.Context) {
	persons, err := h.store.ListPersons(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for _, p := range persons {
		resp = append(resp, dto.PersonResponse{
			ID:        p.ID,
			Name:      p.Name,
			FaceCount: p.FaceCount,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
			UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: len(resp)})
}

// Delete removes a person, their embeddings and their enrollment images.
func (h *PersonHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	keys, err := h.store.DeletePerson(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.objects.DeleteObjects(ctx, keys); err != nil {
		slog.Warn("delete enrollment images", "person", name, "error", err)
	}
	h.gallery.Remove(name)

	if h.SnapshotPath != "" {
		if err := storage.SaveGallery(h.SnapshotPath, h.gallery.Gallery()); err != nil {
			slog.Warn("save gallery snapshot", "path", h.SnapshotPath, "error", err)
		}
	}

	slog.Info("person deleted", "person", name, "images", len(keys))
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "name": name})
}
