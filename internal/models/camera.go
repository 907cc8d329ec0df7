package models

import (
	"time"

	"github.com/google/uuid"
)

type CameraType string

const (
	CameraTypeRTSP   CameraType = "rtsp"
	CameraTypeHTTP   CameraType = "http"
	CameraTypeDevice CameraType = "device" // local capture device, e.g. /dev/video0
)

type CameraStatus string

const (
	CameraStatusStopped  CameraStatus = "stopped"
	CameraStatusStarting CameraStatus = "starting"
	CameraStatusRunning  CameraStatus = "running"
	CameraStatusError    CameraStatus = "error"
)

type Camera struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	URL          string       `json:"url" db:"url"`
	CameraType   CameraType   `json:"cameraType" db:"camera_type"`
	FPS          int          `json:"fps" db:"fps"`
	Status       CameraStatus `json:"status" db:"status"`
	ErrorMessage string       `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time    `json:"updatedAt" db:"updated_at"`
}

// CameraControl is the start/stop command sent from the API to the ingestor.
type CameraControl struct {
	Action   string    `json:"action"` // start, stop
	CameraID uuid.UUID `json:"cameraId"`
}
