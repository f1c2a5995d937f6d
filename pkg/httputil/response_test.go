package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, errors.New("test error"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"test error"}`, w.Body.String())
}

func TestWriteInternalError_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalError(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestWriteDetailedError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDetailedError(w, http.StatusBadRequest, errors.New("validation failed"), map[string]string{"name": "required"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"validation failed","details":{"name":"required"}}`, w.Body.String())
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "m") }, http.StatusBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "m") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "m") }, http.StatusForbidden},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "m") }, http.StatusNotFound},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "m") }, http.StatusConflict},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "m") }, http.StatusServiceUnavailable},
		{"no content", func(w http.ResponseWriter) { WriteNoContent(w) }, http.StatusNoContent},
		{"created", func(w http.ResponseWriter) { _ = WriteCreated(w, map[string]int{"id": 1}) }, http.StatusCreated},
		{"success", func(w http.ResponseWriter) { _ = WriteSuccess(w, map[string]int{"id": 1}) }, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
