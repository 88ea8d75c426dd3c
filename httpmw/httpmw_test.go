package httpmw

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONResponseWritesStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	JSONResponse(w, http.StatusCreated, map[string]string{"id": "abc"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["id"] != "abc" {
		t.Errorf("body[id] = %q, want abc", body["id"])
	}
}

func TestErrorResponseShape(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(w, http.StatusBadRequest, "missing contest ID")

	var body ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Message != "missing contest ID" {
		t.Errorf("Message = %q, want %q", body.Message, "missing contest ID")
	}
	if body.Error != http.StatusText(http.StatusBadRequest) {
		t.Errorf("Error = %q, want %q", body.Error, http.StatusText(http.StatusBadRequest))
	}
}

func TestParseJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"alice"}`))
	var v struct{ Name string }
	if err := ParseJSONBody(req, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Name != "alice" {
		t.Errorf("Name = %q, want alice", v.Name)
	}
}

func TestCORSRespondsToPreflight(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not run for an OPTIONS preflight")
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/contests", nil)
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin to be set")
	}
}

func TestCORSPassesThroughNonPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/contests", nil)
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("inner handler should run for a GET request")
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Errorf("ClientIP = %q, want 203.0.113.5", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Errorf("ClientIP = %q, want 203.0.113.5", got)
	}
}
