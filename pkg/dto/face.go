package dto

// EnrollmentImage is one capture uploaded for enrollment. ImageData is base64,
// optionally prefixed with a data URL header.
type EnrollmentImage struct {
	PersonName string `json:"personName"`
	ImageName  string `json:"imageName"`
	ImageData  string `json:"imageData"`
}

type ProcessImagesRequest struct {
	Images []EnrollmentImage `json:"images"`
}

type ProcessImagesResponse struct {
	Logs       []string               `json:"logs"`
	Embeddings map[string][][]float32 `json:"embeddings"`
	Timestamp  string                 `json:"timestamp"`
}

type RecognizeRequest struct {
	Image      string                 `json:"image"`
	Embeddings map[string][][]float32 `json:"embeddings"`
}

// RecognizeResponse is always returned with 200 once the request is valid.
// Message is set when no face was found; Error when recognition failed.
type RecognizeResponse struct {
	RecognizedName  string             `json:"recognizedName"`
	Similarity      float64            `json:"similarity"`
	AllSimilarities map[string]float64 `json:"allSimilarities,omitempty"`
	Message         string             `json:"message,omitempty"`
	Error           string             `json:"error,omitempty"`
	Timestamp       string             `json:"timestamp"`
}

type ValidateRequest struct {
	Image string `json:"image"`
}

type ValidateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type EmbeddingsResponse struct {
	Embeddings map[string][][]float32 `json:"embeddings"`
	Persons    int                    `json:"persons"`
	Total      int                    `json:"total"`
}
