// Package storage is the persistence gateway for calls, transcripts,
// suspicious-activity records and flagged queries. One backend is chosen at
// start-up; callers only see Gateway.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by single-record lookups.
var ErrNotFound = errors.New("storage: not found")

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// QueryStatusSubmitted is the initial status of every flagged query.
const QueryStatusSubmitted = "Submitted"

type Call struct {
	CallID       string    `json:"call_sid" bson:"call_id"`
	From         string    `json:"from_number" bson:"from_number"`
	To           string    `json:"to_number" bson:"to_number"`
	Direction    Direction `json:"direction" bson:"direction"`
	Summary      string    `json:"summary,omitempty" bson:"summary"`
	RecordingRef string    `json:"recording_ref,omitempty" bson:"recording_ref"`
	CreatedAt    time.Time `json:"timestamp" bson:"created_at"`
}

// Transcript is one utterance. ID is strictly increasing in insertion order.
type Transcript struct {
	ID        int64     `json:"id" bson:"seq"`
	CallID    string    `json:"call_sid" bson:"call_id"`
	Role      Role      `json:"role" bson:"role"`
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"timestamp" bson:"created_at"`
}

// CallSummary is a call with the text of its most recent transcript entry.
type CallSummary struct {
	Call
	LastMessage string `json:"last_message"`
}

// ExportRow is one line of the transcript export.
type ExportRow struct {
	CallTime  time.Time
	Direction Direction
	From      string
	To        string
	Speaker   Role
	Message   string
}

type SuspiciousActivity struct {
	ID          int64     `json:"id" bson:"seq"`
	CallID      string    `json:"call_sid" bson:"call_id"`
	PhoneNumber string    `json:"phone_number" bson:"phone_number"`
	Reason      string    `json:"reason" bson:"reason"`
	CreatedAt   time.Time `json:"timestamp" bson:"created_at"`
}

type FlaggedQuery struct {
	ID        int64     `json:"id" bson:"seq"`
	User      string    `json:"user_name" bson:"user_name"`
	Query     string    `json:"query" bson:"query_text"`
	Status    string    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"timestamp" bson:"created_at"`
}

type Stats struct {
	Calls              int64 `json:"calls"`
	Transcripts        int64 `json:"transcripts"`
	SuspiciousActivity int64 `json:"suspicious_activity"`
	Queries            int64 `json:"queries"`
}

// Gateway is implemented by every persistence backend. Each method is an
// independent unit of work.
type Gateway interface {
	// RecordCallStart inserts the call unless a row with the same id exists.
	RecordCallStart(ctx context.Context, call Call) (inserted bool, err error)
	AppendTranscript(ctx context.Context, callID string, role Role, message string) error
	RecordSuspiciousActivity(ctx context.Context, activity SuspiciousActivity) error
	// ListRecentCalls returns up to limit calls, newest first. Calls created
	// at the same instant are ordered by call id, descending.
	ListRecentCalls(ctx context.Context, limit int) ([]CallSummary, error)
	// ExportAllTranscripts orders calls as ListRecentCalls does, then
	// transcripts by id.
	ExportAllTranscripts(ctx context.Context) ([]ExportRow, error)
	RecordFlaggedQuery(ctx context.Context, user, query string) (*FlaggedQuery, error)

	GetCall(ctx context.Context, callID string) (*Call, error)
	ListTranscripts(ctx context.Context, callID string) ([]Transcript, error)
	UpdateCallSummary(ctx context.Context, callID, summary string) error
	UpdateCallRecording(ctx context.Context, callID, recordingRef string) error
	ListFlaggedQueries(ctx context.Context, limit int) ([]FlaggedQuery, error)
	ListSuspiciousActivity(ctx context.Context, limit int) ([]SuspiciousActivity, error)
	Stats(ctx context.Context) (*Stats, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Config struct {
	Driver      string
	DatabaseURL string
	MongoURI    string
	DBName      string
}

// NewGateway connects to the backend named by cfg.Driver.
func NewGateway(ctx context.Context, cfg Config, logger *zap.Logger) (Gateway, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresGateway(ctx, cfg.DatabaseURL, logger)
	case "mongo":
		return NewMongoGateway(ctx, cfg.MongoURI, cfg.DBName, logger)
	case "memory":
		return NewMemoryGateway(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// DefaultUser is recorded when a flagged query arrives without a user name.
const DefaultUser = "Unknown User"

func normalizeUser(user string) string {
	if user == "" {
		return DefaultUser
	}
	return user
}
