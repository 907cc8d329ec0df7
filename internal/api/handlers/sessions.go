package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/vision"
	"github.com/your-org/attend/pkg/dto"
)

// SessionHandler drives server-side live attendance from uploaded frames.
type SessionHandler struct {
	manager *attendance.Manager
	now     func() time.Time
}

func NewSessionHandler(manager *attendance.Manager) *SessionHandler {
	return &SessionHandler{manager: manager, now: time.Now}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.manager.Open(c.Request.Context(), req.Name, req.CameraID, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(p.Session()))
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.manager.List()
	resp := make([]dto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse(s))
	}
	c.JSON(http.StatusOK, dto.SessionListResponse{Sessions: resp, Total: len(resp)})
}

func (h *SessionHandler) Get(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse(p.Session()))
}

// SubmitFrame feeds one base64 frame to the session. Recognition failures are
// reported in the response; the frame still advances the session.
func (h *SessionHandler) SubmitFrame(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}

	var req dto.FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	frame, err := vision.DecodeBase64Frame(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to decode image"})
		return
	}

	res, err := p.ProcessFrame(c.Request.Context(), frame, h.now())
	if errors.Is(err, attendance.ErrSessionClosed) {
		c.JSON(http.StatusConflict, gin.H{"error": "session closed"})
		return
	}

	resp := frameResponse(res)
	if err != nil {
		slog.Warn("process frame", "session_id", p.Session().ID, "frame", res.FrameIndex, "error", err)
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Close ends the session and returns its final state.
func (h *SessionHandler) Close(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}

	if _, err := h.manager.Close(c.Request.Context(), p.Session().ID, h.now()); err != nil {
		slog.Warn("close session", "session_id", p.Session().ID, "error", err)
	}
	c.JSON(http.StatusOK, sessionResponse(p.Session()))
}

func (h *SessionHandler) lookup(c *gin.Context) (*attendance.Processor, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return nil, false
	}
	p, ok := h.manager.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return p, true
}

func sessionResponse(s *attendance.Session) dto.SessionResponse {
	m := s.Model()
	resp := dto.SessionResponse{
		ID:        m.ID,
		Name:      m.Name,
		CameraID:  m.CameraID,
		Status:    string(m.Status),
		StartedAt: m.StartedAt.Format(time.RFC3339),
		Present:   s.Debouncer().Present(),
	}
	if m.EndedAt != nil {
		resp.EndedAt = m.EndedAt.Format(time.RFC3339)
	}
	return resp
}

func frameResponse(res attendance.FrameResult) dto.FrameResponse {
	resp := dto.FrameResponse{
		FrameIndex: res.FrameIndex,
		Processed:  res.Processed,
		Faces:      make([]dto.TrackedFaceResponse, 0, len(res.Faces)),
		Evicted:    res.Evicted,
	}
	for _, f := range res.Faces {
		resp.Faces = append(resp.Faces, dto.TrackedFaceResponse{
			ID:         f.ID,
			Label:      f.Label(),
			Box:        dto.Box{X: f.Box.X, Y: f.Box.Y, Width: f.Box.Width, Height: f.Box.Height},
			Similarity: f.Similarity,
			Confidence: f.Confidence,
		})
	}
	if res.Marked != nil {
		rec := attendanceResponse(*res.Marked)
		resp.Marked = &rec
	}
	return resp
}

func attendanceResponse(r models.AttendanceRecord) dto.AttendanceResponse {
	return dto.AttendanceResponse{
		ID:         r.ID,
		SessionID:  r.SessionID,
		PersonName: r.PersonName,
		Confidence: r.Confidence,
		MarkedAt:   r.MarkedAt.Format(time.RFC3339),
	}
}
