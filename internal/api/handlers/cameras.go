package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/pkg/dto"
)

type CameraStore interface {
	CreateCamera(ctx context.Context, c *models.Camera) error
	GetCamera(ctx context.Context, id uuid.UUID) (*models.Camera, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
	DeleteCamera(ctx context.Context, id uuid.UUID) error
}

// ControlPublisher sends start/stop commands to the ingestor.
type ControlPublisher interface {
	PublishControl(cmd models.CameraControl) error
}

type CameraHandler struct {
	store      CameraStore
	control    ControlPublisher
	defaultFPS int
}

func NewCameraHandler(store CameraStore, control ControlPublisher, defaultFPS int) *CameraHandler {
	if defaultFPS <= 0 {
		defaultFPS = 5
	}
	return &CameraHandler{store: store, control: control, defaultFPS: defaultFPS}
}

func (h *CameraHandler) Create(c *gin.Context) {
	var req dto.CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fps := req.FPS
	if fps <= 0 {
		fps = h.defaultFPS
	}
	cam := &models.Camera{
		Name:       req.Name,
		URL:        req.URL,
		CameraType: models.CameraType(req.CameraType),
		FPS:        fps,
	}
	if err := h.store.CreateCamera(c.Request.Context(), cam); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cameraToResponse(cam))
}

func (h *CameraHandler) List(c *gin.Context) {
	cams, err := h.store.ListCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := make([]dto.CameraResponse, 0, len(cams))
	for i := range cams {
		resp = append(resp, cameraToResponse(&cams[i]))
	}
	c.JSON(http.StatusOK, dto.CameraListResponse{Cameras: resp, Total: len(resp)})
}

func (h *CameraHandler) Start(c *gin.Context) {
	h.sendControl(c, "start")
}

func (h *CameraHandler) Stop(c *gin.Context) {
	h.sendControl(c, "stop")
}

func (h *CameraHandler) sendControl(c *gin.Context, action string) {
	cam, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := h.control.PublishControl(models.CameraControl{Action: action, CameraID: cam.ID}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send command: " + err.Error()})
		return
	}
	slog.Info("camera command sent", "camera_id", cam.ID, "action", action)
	c.JSON(http.StatusAccepted, gin.H{"status": action + " requested", "cameraId": cam.ID})
}

// Delete stops the camera if it runs and removes it.
func (h *CameraHandler) Delete(c *gin.Context) {
	cam, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := h.control.PublishControl(models.CameraControl{Action: "stop", CameraID: cam.ID}); err != nil {
		slog.Warn("stop camera before delete", "camera_id", cam.ID, "error", err)
	}
	if err := h.store.DeleteCamera(c.Request.Context(), cam.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *CameraHandler) lookup(c *gin.Context) (*models.Camera, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return nil, false
	}
	cam, err := h.store.GetCamera(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return cam, true
}

func cameraToResponse(cam *models.Camera) dto.CameraResponse {
	return dto.CameraResponse{
		ID:           cam.ID,
		Name:         cam.Name,
		URL:          cam.URL,
		CameraType:   string(cam.CameraType),
		FPS:          cam.FPS,
		Status:       string(cam.Status),
		ErrorMessage: cam.ErrorMessage,
		CreatedAt:    cam.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    cam.UpdatedAt.Format(time.RFC3339),
	}
}
