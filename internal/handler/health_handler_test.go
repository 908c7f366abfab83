package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubChecker struct {
	err error
}

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		store      HealthChecker
		redis      HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"all healthy", stubChecker{}, stubChecker{}, http.StatusOK, `"ready"`},
		{"redis not configured", stubChecker{}, nil, http.StatusOK, `"not configured"`},
		{"store down", stubChecker{err: errors.New("disk full")}, stubChecker{}, http.StatusServiceUnavailable, "disk full"},
		{"redis down", stubChecker{}, stubChecker{err: errors.New("refused")}, http.StatusServiceUnavailable, "refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.redis)
			router := gin.New()
			router.GET("/health", h.Health)
			router.GET("/ready", h.Ready)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, w.Code)

			w = httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}
