package orchestrator

import (
	"encoding/json"

	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/internal/session"
	"go-face-analyzer/pkg/models"
)

// DisplayData is what the display stage renders.
type DisplayData struct {
	ImageData string
	Result    models.AnalysisResult
}

// Display reads the last completed attempt from the store. It never calls
// the provider and can be repeated. Anything missing or unreadable is
// MissingState, which callers turn into a redirect to acquisition.
func Display(store session.Store) (DisplayData, error) {
	image, ok := store.Get(session.KeyImage)
	if !ok || image == "" {
		return DisplayData{}, apperrors.NewMissingStateError("no analyzed image in session")
	}
	raw, ok := store.Get(session.KeyResult)
	if !ok || raw == "" {
		return DisplayData{}, apperrors.NewMissingStateError("no analysis result in session")
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return DisplayData{}, apperrors.NewMissingStateError("stored analysis result is unreadable").WithDetails(err.Error())
	}
	if err := result.Validate(); err != nil {
		return DisplayData{}, apperrors.NewMissingStateError("stored analysis result is invalid").WithDetails(err.Error())
	}
	return DisplayData{ImageData: image, Result: result}, nil
}
