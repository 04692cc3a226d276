package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/mongo"
	tracing "github.com/troikatech/voice-ivr/pkg/otel"
)

const (
	collCalls       = "calls"
	collTranscripts = "transcripts"
	collSuspicious  = "suspicious_activity"
	collQueries     = "queries"
)

// MongoGateway stores one collection per record kind. Numeric ids come from
// the counters collection so transcript order survives clock skew.
type MongoGateway struct {
	client *mongo.Client
	logger *zap.Logger
}

func NewMongoGateway(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoGateway, error) {
	client, err := mongo.NewClient(ctx, uri, dbName, logger)
	if err != nil {
		return nil, fmt.Errorf("mongo gateway: %w", err)
	}

	if err := client.EnsureIndexes(ctx,
		mongo.Index{Collection: collCalls, Keys: bson.D{{Key: "call_id", Value: 1}}, Unique: true},
		mongo.Index{Collection: collCalls, Keys: bson.D{{Key: "created_at", Value: -1}}},
		mongo.Index{Collection: collTranscripts, Keys: bson.D{{Key: "call_id", Value: 1}, {Key: "seq", Value: 1}}},
	); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo gateway: %w", err)
	}

	return &MongoGateway{client: client, logger: logger}, nil
}

func (g *MongoGateway) span(ctx context.Context, coll, op string, fn func(context.Context) error) error {
	return tracing.WithDBSpan(ctx, "mongodb", coll, op, fn)
}

func (g *MongoGateway) RecordCallStart(ctx context.Context, call Call) (bool, error) {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	var inserted bool
	err := g.span(ctx, collCalls, "upsert", func(ctx context.Context) error {
		var err error
		inserted, err = g.client.NewQuery(collCalls).Eq("call_id", call.CallID).InsertIfAbsent(ctx, call)
		if err != nil {
			return fmt.Errorf("mongo gateway: record call start: %w", err)
		}
		return nil
	})
	return inserted, err
}

func (g *MongoGateway) AppendTranscript(ctx context.Context, callID string, role Role, message string) error {
	return g.span(ctx, collTranscripts, "insert", func(ctx context.Context) error {
		seq, err := g.client.NextSequence(ctx, collTranscripts)
		if err != nil {
			return fmt.Errorf("mongo gateway: append transcript: %w", err)
		}
		doc := Transcript{ID: seq, CallID: callID, Role: role, Message: message, CreatedAt: time.Now().UTC()}
		if err := g.client.NewQuery(collTranscripts).Insert(ctx, doc); err != nil {
			return fmt.Errorf("mongo gateway: append transcript: %w", err)
		}
		return nil
	})
}

func (g *MongoGateway) RecordSuspiciousActivity(ctx context.Context, a SuspiciousActivity) error {
	return g.span(ctx, collSuspicious, "insert", func(ctx context.Context) error {
		seq, err := g.client.NextSequence(ctx, collSuspicious)
		if err != nil {
			return fmt.Errorf("mongo gateway: record suspicious activity: %w", err)
		}
		a.ID, a.CreatedAt = seq, time.Now().UTC()
		if err := g.client.NewQuery(collSuspicious).Insert(ctx, a); err != nil {
			return fmt.Errorf("mongo gateway: record suspicious activity: %w", err)
		}
		return nil
	})
}

func (g *MongoGateway) ListRecentCalls(ctx context.Context, limit int) ([]CallSummary, error) {
	var out []CallSummary
	err := g.span(ctx, collCalls, "select", func(ctx context.Context) error {
		var calls []Call
		if err := g.client.NewQuery(collCalls).
			Sort("created_at", false).
			Sort("call_id", false).
			Limit(int64(limit)).
			Find(ctx, &calls); err != nil {
			return fmt.Errorf("mongo gateway: list recent calls: %w", err)
		}

		ids := make([]string, len(calls))
		for i, c := range calls {
			ids[i] = c.CallID
		}
		var transcripts []Transcript
		if err := g.client.NewQuery(collTranscripts).
			In("call_id", ids).
			Sort("seq", true).
			Find(ctx, &transcripts); err != nil {
			return fmt.Errorf("mongo gateway: last messages: %w", err)
		}
		last := make(map[string]string, len(calls))
		for _, t := range transcripts {
			last[t.CallID] = t.Message
		}

		out = make([]CallSummary, 0, len(calls))
		for _, c := range calls {
			out = append(out, CallSummary{Call: c, LastMessage: last[c.CallID]})
		}
		return nil
	})
	return out, err
}

func (g *MongoGateway) ExportAllTranscripts(ctx context.Context) ([]ExportRow, error) {
	var out []ExportRow
	err := g.span(ctx, collTranscripts, "select", func(ctx context.Context) error {
		var calls []Call
		if err := g.client.NewQuery(collCalls).
			Sort("created_at", false).
			Sort("call_id", false).
			Find(ctx, &calls); err != nil {
			return fmt.Errorf("mongo gateway: export calls: %w", err)
		}
		var transcripts []Transcript
		if err := g.client.NewQuery(collTranscripts).Sort("seq", true).Find(ctx, &transcripts); err != nil {
			return fmt.Errorf("mongo gateway: export transcripts: %w", err)
		}

		byCall := make(map[string][]Transcript, len(calls))
		for _, t := range transcripts {
			byCall[t.CallID] = append(byCall[t.CallID], t)
		}
		for _, c := range calls {
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

func (g *MongoGateway) RecordFlaggedQuery(ctx context.Context, user, query string) (*FlaggedQuery, error) {
	fq := &FlaggedQuery{User: normalizeUser(user), Query: query, Status: QueryStatusSubmitted}
	err := g.span(ctx, collQueries, "insert", func(ctx context.Context) error {
		seq, err := g.client.NextSequence(ctx, collQueries)
		if err != nil {
			return fmt.Errorf("mongo gateway: record flagged query: %w", err)
		}
		fq.ID, fq.CreatedAt = seq, time.Now().UTC()
		if err := g.client.NewQuery(collQueries).Insert(ctx, fq); err != nil {
			return fmt.Errorf("mongo gateway: record flagged query: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fq, nil
}

func (g *MongoGateway) GetCall(ctx context.Context, callID string) (*Call, error) {
	var c Call
	err := g.span(ctx, collCalls, "select", func(ctx context.Context) error {
		err := g.client.NewQuery(collCalls).Eq("call_id", callID).FindOne(ctx, &c)
		if mongo.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mongo gateway: get call: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *MongoGateway) ListTranscripts(ctx context.Context, callID string) ([]Transcript, error) {
	var out []Transcript
	err := g.span(ctx, collTranscripts, "select", func(ctx context.Context) error {
		if err := g.client.NewQuery(collTranscripts).Eq("call_id", callID).Sort("seq", true).Find(ctx, &out); err != nil {
			return fmt.Errorf("mongo gateway: list transcripts: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *MongoGateway) updateCall(ctx context.Context, field, callID, value string) error {
	return g.span(ctx, collCalls, "update", func(ctx context.Context) error {
		matched, err := g.client.NewQuery(collCalls).Eq("call_id", callID).UpdateOne(ctx, bson.M{field: value})
		if err != nil {
			return fmt.Errorf("mongo gateway: update %s: %w", field, err)
		}
		if !matched {
			return ErrNotFound
		}
		return nil
	})
}

func (g *MongoGateway) UpdateCallSummary(ctx context.Context, callID, summary string) error {
	return g.updateCall(ctx, "summary", callID, summary)
}

func (g *MongoGateway) UpdateCallRecording(ctx context.Context, callID, recordingRef string) error {
	return g.updateCall(ctx, "recording_ref", callID, recordingRef)
}

func (g *MongoGateway) ListFlaggedQueries(ctx context.Context, limit int) ([]FlaggedQuery, error) {
	var out []FlaggedQuery
	err := g.span(ctx, collQueries, "select", func(ctx context.Context) error {
		if err := g.client.NewQuery(collQueries).Sort("seq", false).Limit(int64(limit)).Find(ctx, &out); err != nil {
			return fmt.Errorf("mongo gateway: list queries: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *MongoGateway) ListSuspiciousActivity(ctx context.Context, limit int) ([]SuspiciousActivity, error) {
	var out []SuspiciousActivity
	err := g.span(ctx, collSuspicious, "select", func(ctx context.Context) error {
		if err := g.client.NewQuery(collSuspicious).Sort("seq", false).Limit(int64(limit)).Find(ctx, &out); err != nil {
			return fmt.Errorf("mongo gateway: list suspicious activity: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *MongoGateway) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := g.span(ctx, collCalls, "count", func(ctx context.Context) error {
		counts := []struct {
			coll string
			dst  *int64
		}{
			{collCalls, &s.Calls},
			{collTranscripts, &s.Transcripts},
			{collSuspicious, &s.SuspiciousActivity},
			{collQueries, &s.Queries},
		}
		for _, c := range counts {
			n, err := g.client.NewQuery(c.coll).Count(ctx)
			if err != nil {
				return fmt.Errorf("mongo gateway: count %s: %w", c.coll, err)
			}
			*c.dst = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *MongoGateway) Ping(ctx context.Context) error {
	return g.client.Ping(ctx)
}

func (g *MongoGateway) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}
