package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestErrorResponseWritesProblemJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/calls/CA1", nil)
	c.Set("trace_id", "trace-1")

	NotFound(c, "call not found")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var p ProblemDetail
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if p.Type != "https://ivr.troikatech.in/problems/not-found" {
		t.Errorf("unexpected type %q", p.Type)
	}
	if p.TraceID != "trace-1" || p.Instance != "/api/calls/CA1" {
		t.Errorf("unexpected problem %+v", p)
	}
}
