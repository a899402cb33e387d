package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    NewConfigError("unknown calibration strategy", nil),
			wantMessage: "[CONFIG] unknown calibration strategy",
		},
		{
			name:        "error with cause",
			appError:    NewStorageError("write offsets", fmt.Errorf("disk full")),
			wantMessage: "[STORAGE] write offsets: disk full",
		},
		{
			name: "error with sorted context",
			appError: NewSyncError("no temporal overlap", nil).
				WithContext("series", "ptot_rake").
				WithContext("base", "static_K02"),
			wantMessage: "[SYNC] no temporal overlap (base=static_K02, series=ptot_rake)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := fmt.Errorf("stage failed: %w", NewGeometryError("bad arclength", sentinel))

	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, ErrTypeGeometry, TypeOf(err))
	assert.True(t, Is(err, ErrTypeGeometry))
	assert.False(t, Is(errors.New("plain"), ErrTypeGeometry))
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	h := NewErrorHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reductions/x", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", NewValidationError("bad request", nil), http.StatusBadRequest, TypeValidation},
		{"not found", NewNotFoundError("reduction x"), http.StatusNotFound, TypeNotFound},
		{"sync", NewSyncError("no overlap", nil), http.StatusUnprocessableEntity, TypeSync},
		{"calibration", NewCalibrationError("mismatch", nil), http.StatusUnprocessableEntity, TypeCalibration},
		{"plain", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantType, p.Type)
		})
	}
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	p := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "missing", "/x").
		WithExtension("error_code", "NOT_FOUND")

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "NOT_FOUND", decoded["error_code"])
	assert.Equal(t, float64(404), decoded["status"])
	assert.Equal(t, "/x", decoded["instance"])
}
