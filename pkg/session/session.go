// Package session keeps per-call dialog state between webhook requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/troikatech/voice-ivr/pkg/ai"
)

var (
	// ErrNotFound is returned by Get when the call has no session.
	ErrNotFound = errors.New("session: not found")
	// ErrEnded is returned by Save when the stored session has already ended.
	ErrEnded = errors.New("session: call has ended")
)

// TombstoneTTL is how long an ended session is kept after End so that a
// turn still in flight cannot bring it back.
const TombstoneTTL = 2 * time.Minute

type State string

const (
	StateAwaitLanguage State = "await_language"
	StateGreeting      State = "greeting"
	StateListening     State = "listening"
	StateResponding    State = "responding"
	StateEnded         State = "ended"
)

// Session is the dialog state of one call. History always starts with the
// language's system prompt.
type Session struct {
	CallID    string       `json:"call_id"`
	From      string       `json:"from,omitempty"`
	Language  string       `json:"language"`
	Voice     string       `json:"voice,omitempty"`
	State     State        `json:"state"`
	History   []ai.Message `json:"history"`
	NoInput   int          `json:"no_input"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// UserTurns counts the caller messages already in the history.
func (s *Session) UserTurns() int {
	n := 0
	for _, m := range s.History {
		if m.Role == ai.RoleUser {
			n++
		}
	}
	return n
}

func tombstone(callID string, now time.Time) *Session {
	return &Session{CallID: callID, State: StateEnded, CreatedAt: now, UpdatedAt: now}
}

// Store persists sessions with a fixed time-to-live refreshed on every Save.
type Store interface {
	Get(ctx context.Context, callID string) (*Session, error)
	// Save writes s unless the stored session is in StateEnded, in which
	// case it returns ErrEnded and leaves the stored value alone.
	Save(ctx context.Context, s *Session) error
	// End replaces the session with an ended tombstone kept for TombstoneTTL.
	End(ctx context.Context, callID string) error
	Delete(ctx context.Context, callID string) error
}
