package models

import (
	"time"

	"github.com/google/uuid"
)

type Person struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type FaceEmbedding struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PersonID  uuid.UUID `json:"personId" db:"person_id"`
	Embedding []float32 `json:"embedding" db:"embedding"`
	// Quality is the detector confidence of the enrollment capture.
	Quality   float32   `json:"quality" db:"quality"`
	SourceKey string    `json:"sourceKey" db:"source_key"` // MinIO key of the source image
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// PersonSummary is a person with the number of enrolled embeddings.
type PersonSummary struct {
	Person
	FaceCount int `json:"faceCount"`
}
