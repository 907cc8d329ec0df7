package models

import (
	"time"

	"github.com/google/uuid"
)

// FrameTask is the message published to NATS for worker processing.
type FrameTask struct {
	CameraID  uuid.UUID `json:"cameraId"`
	FrameID   uuid.UUID `json:"frameId"`
	Timestamp time.Time `json:"timestamp"`
	FrameRef  string    `json:"frameRef"` // MinIO object key
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}
