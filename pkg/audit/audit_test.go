package audit

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextFillsActorAndTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/make-call", nil)
	c.Set("admin_user", "ops")
	c.Set("trace_id", "trace-1")

	l.FromContext(c, Entry{Action: ActionDial, ResourceType: "batch"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].LoggerName != "audit" {
		t.Errorf("logger name = %q", entries[0].LoggerName)
	}
	fields := entries[0].ContextMap()
	if fields["actor"] != "ops" || fields["action"] != "dial" || fields["trace_id"] != "trace-1" {
		t.Errorf("fields = %v", fields)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Log(Entry{Action: ActionLogin})
	if New(nil) != nil {
		t.Fatal("New(nil) should be nil")
	}
}

func TestAnonymousActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	New(zap.New(core)).Log(Entry{Action: ActionSubmitQuery})
	if got := logs.All()[0].ContextMap()["actor"]; got != "anonymous" {
		t.Errorf("actor = %v", got)
	}
}
