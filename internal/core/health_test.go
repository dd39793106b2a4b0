package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubProbe struct {
	name string
	err  error
}

func (p stubProbe) Name() string                { return p.name }
func (p stubProbe) Check(context.Context) error { return p.err }

func TestHandleHealthAllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		stubProbe{name: "mongodb"},
		stubProbe{name: "redis"},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"mongodb"`)
}

func TestHandleHealthUnhealthyProbe(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		stubProbe{name: "mongodb"},
		stubProbe{name: "postgres", err: errors.New("connection refused")},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestHandleHealthNoProbes(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
