package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autogrid/internal/autogrid"
)

func TestStatusHandler(t *testing.T) {
	h := Handler(func(now time.Time) autogrid.Status {
		return autogrid.Status{Service: "autogrid", Grid: "FN31"}
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var st autogrid.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Service != "autogrid" || st.Grid != "FN31" {
		t.Fatalf("status body = %+v", st)
	}
}

func TestStatusHandlerMethodNotAllowed(t *testing.T) {
	h := Handler(func(time.Time) autogrid.Status { return autogrid.Status{} })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
