package dto

import "github.com/google/uuid"

type CreateSessionRequest struct {
	Name     string     `json:"name" binding:"required"`
	CameraID *uuid.UUID `json:"cameraId,omitempty"`
}

type SessionResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CameraID  *uuid.UUID `json:"cameraId,omitempty"`
	Status    string     `json:"status"`
	StartedAt string     `json:"startedAt"`
	EndedAt   string     `json:"endedAt,omitempty"`
	Present   []string   `json:"present"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

type FrameRequest struct {
	Image string `json:"image" binding:"required"`
}

type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type TrackedFaceResponse struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Box        Box     `json:"box"`
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
}

// FrameResponse is the session state after one uploaded frame. Error carries a
// recognition failure; the frame still counts and tracking continues.
type FrameResponse struct {
	FrameIndex int                   `json:"frameIndex"`
	Processed  bool                  `json:"processed"`
	Faces      []TrackedFaceResponse `json:"faces"`
	Evicted    []string              `json:"evicted,omitempty"`
	Marked     *AttendanceResponse   `json:"marked,omitempty"`
	Error      string                `json:"error,omitempty"`
}

type MarkAttendanceRequest struct {
	PersonName string    `json:"personName" binding:"required"`
	SessionID  uuid.UUID `json:"sessionId" binding:"required"`
	// Confidence defaults to 1 for manual marks.
	Confidence *float64 `json:"confidence,omitempty"`
}

type AttendanceResponse struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"sessionId"`
	PersonName string    `json:"personName"`
	Confidence float64   `json:"confidence"`
	MarkedAt   string    `json:"markedAt"`
}

type AttendanceStats struct {
	TotalPersons   int `json:"totalPersons"`
	PresentPersons int `json:"presentPersons"`
	AbsentPersons  int `json:"absentPersons"`
	AttendanceRate int `json:"attendanceRate"` // percent, rounded
}

type AttendanceDayResponse struct {
	Date    string               `json:"date"`
	Records []AttendanceResponse `json:"records"`
	Stats   AttendanceStats      `json:"stats"`
}

// WSEvent is a websocket push message.
type WSEvent struct {
	Type      string             `json:"type"` // attendance_marked
	SessionID uuid.UUID          `json:"sessionId"`
	Record    AttendanceResponse `json:"record"`
}
