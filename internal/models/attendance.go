package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceRecord is the single mark for one person within one session.
type AttendanceRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	SessionID  uuid.UUID `json:"sessionId" db:"session_id"`
	PersonName string    `json:"personName" db:"person_name"`
	Confidence float64   `json:"confidence" db:"confidence"`
	MarkedAt   time.Time `json:"markedAt" db:"marked_at"`
}

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

type Session struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	CameraID  *uuid.UUID    `json:"cameraId,omitempty" db:"camera_id"`
	Status    SessionStatus `json:"status" db:"status"`
	StartedAt time.Time     `json:"startedAt" db:"started_at"`
	EndedAt   *time.Time    `json:"endedAt,omitempty" db:"ended_at"`
}

// AttendanceEvent is published on NATS and pushed over the websocket hub
// whenever a person is marked present.
type AttendanceEvent struct {
	Type   string           `json:"type"` // attendance_marked
	Record AttendanceRecord `json:"record"`
}

const EventAttendanceMarked = "attendance_marked"
