package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/pkg/dto"
)

const dateLayout = "2006-01-02"

type AttendanceStore interface {
	AttendanceBetween(ctx context.Context, from, to time.Time) ([]models.AttendanceRecord, error)
	ListPersons(ctx context.Context) ([]models.PersonSummary, error)
}

type AttendanceHandler struct {
	manager *attendance.Manager
	store   AttendanceStore
	now     func() time.Time
}

func NewAttendanceHandler(manager *attendance.Manager, store AttendanceStore) *AttendanceHandler {
	return &AttendanceHandler{manager: manager, store: store, now: time.Now}
}

// Mark records a manual mark through the session's debouncer, so it obeys
// the once-per-session rule like live recognition does.
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, ok := h.manager.Get(req.SessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	known, err := h.enrolled(c.Request.Context(), req.PersonName)
	if err != nil {
		slog.Error("list persons", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark attendance"})
		return
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}

	deb := p.Session().Debouncer()
	if deb.Attended(req.PersonName) {
		c.JSON(http.StatusConflict, gin.H{"error": "Attendance already marked for this session"})
		return
	}

	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	rec, err := deb.Consider(c.Request.Context(), req.PersonName, confidence, h.now())
	if err != nil {
		slog.Error("mark attendance", "person", req.PersonName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark attendance"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "person name or confidence not accepted"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":          "Attendance marked successfully",
		"attendanceRecord": attendanceResponse(*rec),
	})
}

func (h *AttendanceHandler) enrolled(ctx context.Context, name string) (bool, error) {
	persons, err := h.store.ListPersons(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range persons {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ByDate reports the records of one local calendar day.
func (h *AttendanceHandler) ByDate(c *gin.Context) {
	day, err := time.ParseInLocation(dateLayout, c.Param("date"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	ctx := c.Request.Context()

	records, err := h.store.AttendanceBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attendance records"})
		return
	}
	persons, err := h.store.ListPersons(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attendance records"})
		return
	}

	resp := dto.AttendanceDayResponse{
		Date:    day.Format(dateLayout),
		Records: make([]dto.AttendanceResponse, 0, len(records)),
		Stats:   dayStats(records, len(persons)),
	}
	for _, r := range records {
		resp.Records = append(resp.Records, attendanceResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

// dayStats counts each person once even when they attended several sessions.
func dayStats(records []models.AttendanceRecord, total int) dto.AttendanceStats {
	present := map[string]bool{}
	for _, r := range records {
		present[r.PersonName] = true
	}
	s := dto.AttendanceStats{
		TotalPersons:   total,
		PresentPersons: len(present),
	}
	if total > len(present) {
		s.AbsentPersons = total - len(present)
	}
	if total > 0 {
		s.AttendanceRate = int(math.Round(float64(len(present)) / float64(total) * 100))
	}
	return s
}
