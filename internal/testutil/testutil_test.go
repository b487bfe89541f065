package testutil

import (
	"errors"
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	rec := NewTestRecorder()
	rec.WriteHeader(http.StatusNotFound)
	AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, errors.New("covariance is singular"))
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest("GET", "/api/fusion/state")
	if req.Method != "GET" {
		t.Errorf("method = %q, want GET", req.Method)
	}
	if req.URL.Path != "/api/fusion/state" {
		t.Errorf("path = %q, want /api/fusion/state", req.URL.Path)
	}
}

func TestNewTestRecorder(t *testing.T) {
	rec := NewTestRecorder()
	if rec.Code != http.StatusOK {
		t.Errorf("fresh recorder code = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body == nil {
		t.Error("fresh recorder should have a body buffer")
	}
}
