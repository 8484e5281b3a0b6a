package api

import (
	"net/http"
	"testing"
)

func TestHealthNoAuth(t *testing.T) {
	h := newTestServer(t, newFakeStore(), newFakeCache())

	rec := doRequest(t, h, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"status\":\"ok\"}\n" {
		t.Errorf("body = %q, want {\"status\":\"ok\"}", got)
	}
}
