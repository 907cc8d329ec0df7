package dto

import "github.com/google/uuid"

type CreateCameraRequest struct {
	Name       string `json:"name" binding:"required"`
	URL        string `json:"url" binding:"required"`
	CameraType string `json:"cameraType" binding:"required,oneof=rtsp http device"`
	FPS        int    `json:"fps"`
}

type CameraResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	CameraType   string    `json:"cameraType"`
	FPS          int       `json:"fps"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    string    `json:"createdAt"`
	UpdatedAt    string    `json:"updatedAt"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
	Total   int              `json:"total"`
}
