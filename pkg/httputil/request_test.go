package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"name": "test"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			expectError: true,
		},
		{
			name:        "empty body",
			body:        ``,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

type createThing struct {
	Name     string `json:"name" validate:"required,max=16"`
	Priority int    `json:"priority" validate:"gte=0,lte=5"`
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/things", bytes.NewBufferString(`{"name":"alpha","priority":2}`))
		w := httptest.NewRecorder()

		var dest createThing
		ok := DecodeAndValidate(w, req, &dest)

		assert.True(t, ok)
		assert.Equal(t, "alpha", dest.Name)
	})

	t.Run("field errors are reported", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/things", bytes.NewBufferString(`{"priority":9}`))
		w := httptest.NewRecorder()

		var dest createThing
		ok := DecodeAndValidate(w, req, &dest)

		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "validation failed", resp.Error)
		assert.Equal(t, "required", resp.Details["Name"])
		assert.Equal(t, "lte", resp.Details["Priority"])
	})

	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/things", bytes.NewBufferString(`{`))
		w := httptest.NewRecorder()

		var dest createThing
		assert.False(t, DecodeAndValidate(w, req, &dest))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    int64
		wantErr bool
	}{
		{name: "valid", vars: map[string]string{"id": "9223372036854775807"}, want: 9223372036854775807},
		{name: "missing", vars: map[string]string{}, wantErr: true},
		{name: "not a number", vars: map[string]string{"id": "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest("GET", "/x", nil), tt.vars)
			got, err := ParsePathInt64(req, "id")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathInt64OrError_Invalid(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest("GET", "/x", nil), map[string]string{"id": "nope"})
	w := httptest.NewRecorder()

	_, ok := ParsePathInt64OrError(w, req, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest("GET", "/x", nil), map[string]string{"category": "appearance"})

	val, err := ParsePathString(req, "category")
	assert.NoError(t, err)
	assert.Equal(t, "appearance", val)

	_, err = ParsePathString(req, "missing")
	assert.Error(t, err)
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?limit=25", nil)
	val, err := ParseQueryInt(req, "limit", 10)
	assert.NoError(t, err)
	assert.Equal(t, 25, val)

	val, err = ParseQueryInt(req, "offset", 3)
	assert.NoError(t, err)
	assert.Equal(t, 3, val)

	_, err = ParseQueryInt(httptest.NewRequest("GET", "/x?limit=many", nil), "limit", 10)
	assert.Error(t, err)
}

func TestParseQueryOptionalInt64(t *testing.T) {
	val, err := ParseQueryOptionalInt64(httptest.NewRequest("GET", "/x", nil), "project_id")
	assert.NoError(t, err)
	assert.Nil(t, val)

	val, err = ParseQueryOptionalInt64(httptest.NewRequest("GET", "/x?project_id=12", nil), "project_id")
	require.NoError(t, err)
	require.NotNil(t, val)
	assert.Equal(t, int64(12), *val)

	_, err = ParseQueryOptionalInt64(httptest.NewRequest("GET", "/x?project_id=p", nil), "project_id")
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?action=role.assigned", nil)
	assert.Equal(t, "role.assigned", ParseQueryString(req, "action", ""))
	assert.Equal(t, "fallback", ParseQueryString(req, "other", "fallback"))
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?enabled=false", nil)
	val, err := ParseQueryBool(req, "enabled", true)
	assert.NoError(t, err)
	assert.False(t, val)

	_, err = ParseQueryBool(httptest.NewRequest("GET", "/x?enabled=maybe", nil), "enabled", true)
	assert.Error(t, err)
}
