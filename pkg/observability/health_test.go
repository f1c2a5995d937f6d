package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*HealthChecker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHealthChecker(db, nil), mock
}

func TestHealthChecker_NoDependencies(t *testing.T) {
	status := NewHealthChecker(nil, nil).Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Empty(t, status.Dependencies)
}

func TestHealthChecker_DatabaseHealthy(t *testing.T) {
	checker, mock := newMockDB(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	status := checker.Check(context.Background())

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_DatabaseDown(t *testing.T) {
	checker, mock := newMockDB(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("connection refused"))

	status := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Dependencies["database"].Message, "connection refused")
}

func TestHealthChecker_RedisDownDegrades(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, client)
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)

	mr.Close()
	status := checker.Check(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
}

func TestHealthChecker_Readiness(t *testing.T) {
	checker, mock := newMockDB(t)
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("down"))

	rec := httptest.NewRecorder()
	checker.WithVersion("1.2.3").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "1.2.3", body.Version)
}

func TestRegisterHealthRoutes(t *testing.T) {
	serveMux := http.NewServeMux()
	RegisterHealthRoutes(serveMux, NewHealthChecker(nil, nil))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		serveMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
