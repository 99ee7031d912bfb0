package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"no face", NewNoFaceDetectedError("none"), KindNoFaceDetected},
		{"transport", NewTransportError("down", fmt.Errorf("dial")), KindTransportError},
		{"wrapped malformed", fmt.Errorf("detect: %w", NewMalformedResponseError("bad json", nil)), KindMalformedResponse},
		{"generic app error", NewValidationError("bad", nil), KindNone},
		{"plain error", fmt.Errorf("plain"), KindNone},
		{"nil", nil, KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := NewTransportError("provider returned 503", fmt.Errorf("busy"))
	assert.Equal(t, "TransportError: provider returned 503 (caused by: busy)", err.Error())

	plain := NewNotFoundError("session not found", nil)
	assert.Equal(t, "not_found: session not found", plain.Error())
}

func TestGetStatusCode(t *testing.T) {
	require.Equal(t, http.StatusSeeOther, GetStatusCode(NewMissingStateError("empty")))
	require.Equal(t, http.StatusConflict, GetStatusCode(fmt.Errorf("wrap: %w", NewConflictError("busy", nil))))
	require.Equal(t, http.StatusInternalServerError, GetStatusCode(fmt.Errorf("other")))
}

func TestIsType(t *testing.T) {
	require.True(t, IsType(NewInvalidImageError("bad", nil), ErrorTypeValidation))
	require.False(t, IsType(NewNoFaceDetectedError("none"), ErrorTypeValidation))
	require.True(t, IsKind(NewNoFaceDetectedError("none"), KindNoFaceDetected))
	require.False(t, IsKind(nil, KindNone))
}
