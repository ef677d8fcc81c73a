package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func ready(t *testing.T, h *HealthHandler) (int, readinessResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	h.Ready(c)

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestReady(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		deps     []Dependency
		code     int
		statuses map[string]string
	}{
		{
			name: "no dependencies",
			code: http.StatusOK,
		},
		{
			name:     "optional dependency down",
			deps:     []Dependency{{Name: "redis", Checker: down}, {Name: "milvus", Checker: ok, Required: true}},
			code:     http.StatusOK,
			statuses: map[string]string{"redis": "degraded", "milvus": "ok"},
		},
		{
			name:     "required dependency down",
			deps:     []Dependency{{Name: "milvus", Checker: down, Required: true}},
			code:     http.StatusServiceUnavailable,
			statuses: map[string]string{"milvus": "error"},
		},
		{
			name: "nil checker ignored",
			deps: []Dependency{{Name: "postgres", Required: true}},
			code: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ready(t, NewHealthHandler("test", tt.deps...))
			assert.Equal(t, tt.code, code)
			assert.Len(t, resp.Checks, len(tt.statuses))
			for name, status := range tt.statuses {
				require.Contains(t, resp.Checks, name)
				assert.Equal(t, status, resp.Checks[name].Status)
			}
		})
	}
}
