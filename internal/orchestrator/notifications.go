package orchestrator

import (
	apperrors "go-face-analyzer/internal/errors"
	"go-face-analyzer/pkg/models"
)

// NotificationFor builds the message shown to the user for a failed
// attempt. MissingState is handled by redirecting and has no message.
func NotificationFor(kind apperrors.ErrorKind, reason string) *models.Notification {
	switch kind {
	case apperrors.KindNoFaceDetected:
		return &models.Notification{
			Kind:      string(kind),
			Title:     "No face detected",
			Message:   "We couldn't find a face in this photo. Try a well-lit, front-facing picture with your whole face in frame.",
			Retryable: true,
		}
	case apperrors.KindInvalidImage:
		return &models.Notification{
			Kind:      string(kind),
			Title:     "Could not read this image",
			Message:   "Please upload a JPG, PNG or GIF photo and try again.",
			Retryable: true,
		}
	case apperrors.KindTransportError:
		msg := "Analysis failed. Please try again in a moment."
		if reason != "" {
			msg = "Analysis failed: " + reason
		}
		return &models.Notification{
			Kind:      string(kind),
			Title:     "Analysis failed",
			Message:   msg,
			Retryable: true,
		}
	case apperrors.KindMissingState, apperrors.KindNone:
		return nil
	default:
		return &models.Notification{
			Kind:      string(kind),
			Title:     "Analysis failed",
			Message:   "Something went wrong while analyzing your photo. Please try again.",
			Retryable: true,
		}
	}
}
