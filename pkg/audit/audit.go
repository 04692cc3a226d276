// Package audit writes a structured trail of admin actions to a dedicated
// "audit" logger.
package audit

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Action represents an audit action
type Action string

const (
	ActionLogin         Action = "login"
	ActionLoginFailed   Action = "login_failed"
	ActionDial          Action = "dial"
	ActionExport        Action = "export"
	ActionSubmitQuery   Action = "submit_query"
	ActionSummarize     Action = "summarize"
	ActionLiveSubscribe Action = "live_subscribe"
)

// Entry is one audited admin action.
type Entry struct {
	Actor        string
	Action       Action
	ResourceType string
	ResourceID   string
	Fields       []zap.Field
}

// Logger records audit entries. A nil *Logger is a no-op.
type Logger struct {
	log *zap.Logger
}

func New(base *zap.Logger) *Logger {
	if base == nil {
		return nil
	}
	return &Logger{log: base.Named("audit")}
}

// Log writes e.
func (l *Logger) Log(e Entry) {
	if l == nil {
		return
	}
	actor := e.Actor
	if actor == "" {
		actor = "anonymous"
	}
	fields := append([]zap.Field{
		zap.String("actor", actor),
		zap.String("action", string(e.Action)),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
	}, e.Fields...)
	l.log.Info("Audit event", fields...)
}

// FromContext fills Actor and the trace id from a request handled by the
// auth and trace middleware.
func (l *Logger) FromContext(c *gin.Context, e Entry) {
	if e.Actor == "" {
		e.Actor = c.GetString("admin_user")
	}
	if traceID := c.GetString("trace_id"); traceID != "" {
		e.Fields = append(e.Fields, zap.String("trace_id", traceID))
	}
	e.Fields = append(e.Fields, zap.String("client_ip", c.ClientIP()))
	l.Log(e)
}
