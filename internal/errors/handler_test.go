package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewJSONHandler(io.Discard, nil)), false)
}

func TestErrorToProblem(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/license/activate", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"invalid key", ErrInvalidKey, http.StatusNotFound, TypeLicenseInvalid},
		{"wrapped revoked", fmt.Errorf("activate: %w", ErrRevoked), http.StatusForbidden, TypeLicenseRevoked},
		{"device mismatch", ErrDeviceMismatch, http.StatusConflict, TypeLicenseMismatch},
		{"not activated", ErrNotActivated, http.StatusPaymentRequired, TypeLicenseRequired},
		{"admin required", ErrAdminRequired, http.StatusForbidden, TypeAdminRequired},
		{"wrong passcode", ErrWrongPasscode, http.StatusForbidden, TypeWrongPasscode},
		{"asset not found", ErrAssetNotFound, http.StatusNotFound, TypeNotFound},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, TypeRateLimit},
		{"transport", &TransportError{URL: "https://x", StatusCode: 404}, http.StatusBadGateway, TypeDownloadFailed},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"api error", NotFoundError("asset"), http.StatusNotFound, TypeNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := h.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/license/activate", problem.Instance)
		})
	}
}

func TestHandleErrorRendersProblemJSON(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/license/activate", nil)
	rec := httptest.NewRecorder()

	h.HandleError(rec, req, ErrDeviceMismatch)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, TypeLicenseMismatch, body["type"])
	assert.Equal(t, "device_mismatch", body["reason"])
	assert.Equal(t, float64(http.StatusConflict), body["status"])
	assert.Contains(t, body, "trace_id")
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := io.ErrUnexpectedEOF
	err := fmt.Errorf("install: %w", &TransportError{URL: "https://cdn/x.drfx", Err: inner})

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, te.Error(), "https://cdn/x.drfx")

	withStatus := &TransportError{URL: "u", StatusCode: 503}
	assert.Contains(t, withStatus.Error(), "503")
}

func TestProblemDetailsMarshalKeepsStandardFields(t *testing.T) {
	pd := NewProblemDetails(http.StatusBadRequest, TypeValidation, "Bad", "detail", "/x").
		WithExtension("status", "overridden").
		WithExtension("field", "title")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
	assert.Equal(t, "title", body["field"])
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPatch, "/api/assets", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "PATCH")
}
