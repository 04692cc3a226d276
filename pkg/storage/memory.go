package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	tracing "github.com/troikatech/voice-ivr/pkg/otel"
)

// MemoryGateway keeps everything in process memory. It backs
// STORE_DRIVER=memory for local runs and the handler tests.
type MemoryGateway struct {
	mu          sync.RWMutex
	now         func() time.Time
	calls       []Call
	callIndex   map[string]int
	transcripts []Transcript
	suspicious  []SuspiciousActivity
	queries     []FlaggedQuery
	seq         int64
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		now:       func() time.Time { return time.Now().UTC() },
		callIndex: make(map[string]int),
	}
}

func (g *MemoryGateway) span(ctx context.Context, collection, op string, fn func() error) error {
	return tracing.WithDBSpan(ctx, "memory", collection, op, func(context.Context) error { return fn() })
}

func (g *MemoryGateway) nextID() int64 {
	g.seq++
	return g.seq
}

func (g *MemoryGateway) RecordCallStart(ctx context.Context, call Call) (bool, error) {
	var inserted bool
	err := g.span(ctx, "calls", "insert", func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		if _, ok := g.callIndex[call.CallID]; ok {
			return nil
		}
		if call.CreatedAt.IsZero() {
			call.CreatedAt = g.now()
		}
		g.callIndex[call.CallID] = len(g.calls)
		g.calls = append(g.calls, call)
		inserted = true
		return nil
	})
	return inserted, err
}

func (g *MemoryGateway) AppendTranscript(ctx context.Context, callID string, role Role, message string) error {
	return g.span(ctx, "transcripts", "insert", func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.transcripts = append(g.transcripts, Transcript{
			ID:        g.nextID(),
			CallID:    callID,
			Role:      role,
			Message:   message,
			CreatedAt: g.now(),
		})
		return nil
	})
}

func (g *MemoryGateway) RecordSuspiciousActivity(ctx context.Context, activity SuspiciousActivity) error {
	return g.span(ctx, "suspicious_activity", "insert", func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		activity.ID = g.nextID()
		activity.CreatedAt = g.now()
		g.suspicious = append(g.suspicious, activity)
		return nil
	})
}

// recentCalls returns call indexes ordered by created_at, then call id, both
// descending. Caller holds mu.
func (g *MemoryGateway) recentCalls() []int {
	idx := make([]int, len(g.calls))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ca, cb := g.calls[idx[a]], g.calls[idx[b]]
		if !ca.CreatedAt.Equal(cb.CreatedAt) {
			return ca.CreatedAt.After(cb.CreatedAt)
		}
		return ca.CallID > cb.CallID
	})
	return idx
}

func (g *MemoryGateway) ListRecentCalls(ctx context.Context, limit int) ([]CallSummary, error) {
	var out []CallSummary
	err := g.span(ctx, "calls", "select", func() error {
		g.mu.RLock()
		defer g.mu.RUnlock()

		last := make(map[string]string)
		for _, t := range g.transcripts {
			last[t.CallID] = t.Message
		}
		for _, i := range g.recentCalls() {
			if len(out) == limit {
				break
			}
			out = append(out, CallSummary{Call: g.calls[i], LastMessage: last[g.calls[i].CallID]})
		}
		return nil
	})
	return out, err
}

func (g *MemoryGateway) ExportAllTranscripts(ctx context.Context) ([]ExportRow, error) {
	var out []ExportRow
	err := g.span(ctx, "transcripts", "select", func() error {
		g.mu.RLock()
		defer g.mu.RUnlock()

		byCall := make(map[string][]Transcript)
		for _, t := range g.transcripts {
			byCall[t.CallID] = append(byCall[t.CallID], t)
		}
		for _, i := range g.recentCalls() {
			c := g.calls[i]
			for _, t := range byCall[c.CallID] {
				out = append(out, ExportRow{
					CallTime:  c.CreatedAt,
					Direction: c.Direction,
					From:      c.From,
					To:        c.To,
					Speaker:   t.Role,
					Message:   t.Message,
				})
			}
		}
		return nil
	})
	return out, err
}

func (g *MemoryGateway) RecordFlaggedQuery(ctx context.Context, user, query string) (*FlaggedQuery, error) {
	var q FlaggedQuery
	err := g.span(ctx, "queries", "insert", func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		q = FlaggedQuery{
			ID:        g.nextID(),
			User:      normalizeUser(user),
			Query:     query,
			Status:    QueryStatusSubmitted,
			CreatedAt: g.now(),
		}
		g.queries = append(g.queries, q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (g *MemoryGateway) GetCall(ctx context.Context, callID string) (*Call, error) {
	var call Call
	err := g.span(ctx, "calls", "select", func() error {
		g.mu.RLock()
		defer g.mu.RUnlock()
		i, ok := g.callIndex[callID]
		if !ok {
			return ErrNotFound
		}
		call = g.calls[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &call, nil
}

func (g *MemoryGateway) ListTranscripts(ctx context.Context, callID string) ([]Transcript, error) {
	var out []Transcript
	err := g.span(ctx, "transcripts", "select", func() error {
		g.mu.RLock()
		defer g.mu.RUnlock()
		for _, t := range g.transcripts {
			if t.CallID == callID {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

func (g *MemoryGateway) updateCall(ctx context.Context, callID string, apply func(*Call)) error {
	return g.span(ctx, "calls", "update", func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		i, ok := g.callIndex[callID]
		if !ok {
			return ErrNotFound
		}
		apply(&g.calls[i])
		return nil
	})
}

func (g *MemoryGateway) UpdateCallSummary(ctx context.Context, callID, summary string) error {
	return g.updateCall(ctx, callID, func(c *Call) { c.Summary = summary })
}

func (g *MemoryGateway) UpdateCallRecording(ctx context.Context, callID, recordingRef string) error {
	return g.updateCall(ctx, callID, func(c *Call) { c.RecordingRef = recordingRef })
}

func (g *MemoryGateway) ListFlaggedQueries(ctx context.Context, limit int) ([]FlaggedQuery, error) {
	var out []FlaggedQuery
	err := g.span(ctx, "queries", "select", func() error {
		g.mu.RLock()
		defer g.mu.RUnlock()
		for i := len(g.queries) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, g.queries[i])
		}
		return nil
	})
	return out, err
}

func (g *MemoryGateway) ListSuspiciousActivity(ctx context.Context, limit int) ([]SuspiciousActivity, error) {
	var out []SuspiciousActivity
	err := g.span(ctx, "suspicious_activity", "select", func() error {
		g.mu.RLock()
		defer g.mu.RUnlock()
		for i := len(g.suspicious) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, g.suspicious[i])
		}
		return nil
	})
	return out, err
}

func (g *MemoryGateway) Stats(ctx context.Context) (*Stats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return &Stats{
		Calls:              int64(len(g.calls)),
		Transcripts:        int64(len(g.transcripts)),
		SuspiciousActivity: int64(len(g.suspicious)),
		Queries:            int64(len(g.queries)),
	}, nil
}

func (g *MemoryGateway) Ping(context.Context) error  { return nil }
func (g *MemoryGateway) Close(context.Context) error { return nil }
