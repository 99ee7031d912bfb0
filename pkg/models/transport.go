package models

// AnalysisRequest is the input contract of one attempt. ImageData is a
// data URL or bare base64 string.
type AnalysisRequest struct {
	ImageData string `json:"imageData"`
	UserID    string `json:"userId,omitempty"`
}

// BlobReference names an image held in blob storage.
type BlobReference struct {
	Container string `json:"container" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

// SubmitImageRequest is the JSON body accepted by the acquisition endpoint.
// Exactly one of ImageData, SourceURL or Blob is expected.
type SubmitImageRequest struct {
	ImageData string         `json:"imageData,omitempty"`
	SourceURL string         `json:"sourceUrl,omitempty"`
	Blob      *BlobReference `json:"blob,omitempty"`
	UserID    string         `json:"userId,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionResponse is returned when a hand-off session is created.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Notification is the user-facing message attached to a failed attempt.
type Notification struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// StateResponse reports the pipeline state of a session.
type StateResponse struct {
	SessionID    string          `json:"sessionId"`
	State        string          `json:"state"`
	AttemptID    string          `json:"attemptId,omitempty"`
	StartedAt    string          `json:"startedAt,omitempty"`
	FinishedAt   string          `json:"finishedAt,omitempty"`
	Result       *AnalysisResult `json:"result,omitempty"`
	Notification *Notification   `json:"notification,omitempty"`
}

// ResultsResponse is what the display stage renders.
type ResultsResponse struct {
	ImageData string         `json:"imageData"`
	Result    AnalysisResult `json:"result"`
}
