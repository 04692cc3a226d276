package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// gatewayContract exercises the behaviour every backend must share.
func gatewayContract(t *testing.T, newGateway func(t *testing.T) Gateway) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("record call start is idempotent", func(t *testing.T) {
		g := newGateway(t)
		call := Call{CallID: "CA100", From: "+911111111111", To: "+912222222222", Direction: DirectionInbound, CreatedAt: base}

		inserted, err := g.RecordCallStart(ctx, call)
		if err != nil || !inserted {
			t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
		}
		call.From = "+919999999999"
		inserted, err = g.RecordCallStart(ctx, call)
		if err != nil || inserted {
			t.Fatalf("second insert: inserted=%v err=%v", inserted, err)
		}

		stats, err := g.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Calls != 1 {
			t.Errorf("expected 1 call row, got %d", stats.Calls)
		}
		got, err := g.GetCall(ctx, "CA100")
		if err != nil {
			t.Fatalf("GetCall: %v", err)
		}
		if got.From != "+911111111111" {
			t.Errorf("second insert overwrote the row: %+v", got)
		}
	})

	t.Run("recent calls carry last message", func(t *testing.T) {
		g := newGateway(t)
		for i, id := range []string{"CA1", "CA2", "CA3"} {
			if _, err := g.RecordCallStart(ctx, Call{CallID: id, Direction: DirectionOutbound, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
				t.Fatalf("RecordCallStart: %v", err)
			}
		}
		mustAppend(t, g, "CA1", RoleUser, "first question")
		mustAppend(t, g, "CA1", RoleAssistant, "first answer")
		mustAppend(t, g, "CA3", RoleUser, "only question")

		calls, err := g.ListRecentCalls(ctx, 2)
		if err != nil {
			t.Fatalf("ListRecentCalls: %v", err)
		}
		if len(calls) != 2 {
			t.Fatalf("expected 2 calls, got %d", len(calls))
		}
		if calls[0].CallID != "CA3" || calls[1].CallID != "CA2" {
			t.Errorf("unexpected order: %s, %s", calls[0].CallID, calls[1].CallID)
		}
		if calls[0].LastMessage != "only question" || calls[1].LastMessage != "" {
			t.Errorf("unexpected last messages: %q, %q", calls[0].LastMessage, calls[1].LastMessage)
		}

		all, _ := g.ListRecentCalls(ctx, 10)
		if all[2].LastMessage != "first answer" {
			t.Errorf("expected most recent message for CA1, got %q", all[2].LastMessage)
		}
	})

	t.Run("same created_at ordered by call id descending", func(t *testing.T) {
		g := newGateway(t)
		for _, id := range []string{"CB", "CA", "CC"} {
			if _, err := g.RecordCallStart(ctx, Call{CallID: id, Direction: DirectionInbound, CreatedAt: base}); err != nil {
				t.Fatalf("RecordCallStart: %v", err)
			}
			mustAppend(t, g, id, RoleUser, id+"-msg")
		}

		calls, err := g.ListRecentCalls(ctx, 10)
		if err != nil {
			t.Fatalf("ListRecentCalls: %v", err)
		}
		want := []string{"CC", "CB", "CA"}
		if len(calls) != len(want) {
			t.Fatalf("expected %d calls, got %d", len(want), len(calls))
		}
		for i, w := range want {
			if calls[i].CallID != w {
				t.Errorf("calls[%d] = %s, want %s", i, calls[i].CallID, w)
			}
		}

		rows, err := g.ExportAllTranscripts(ctx)
		if err != nil {
			t.Fatalf("ExportAllTranscripts: %v", err)
		}
		if len(rows) != len(want) {
			t.Fatalf("expected %d rows, got %d", len(want), len(rows))
		}
		for i, w := range want {
			if rows[i].Message != w+"-msg" {
				t.Errorf("row %d = %q, want %q", i, rows[i].Message, w+"-msg")
			}
		}
	})

	t.Run("export orders by call recency then sequence", func(t *testing.T) {
		g := newGateway(t)
		_, _ = g.RecordCallStart(ctx, Call{CallID: "OLD", From: "+911", To: "+912", Direction: DirectionInbound, CreatedAt: base})
		_, _ = g.RecordCallStart(ctx, Call{CallID: "NEW", From: "+913", To: "+914", Direction: DirectionOutbound, CreatedAt: base.Add(time.Hour)})

		mustAppend(t, g, "OLD", RoleUser, "old-1")
		mustAppend(t, g, "NEW", RoleUser, "new-1")
		mustAppend(t, g, "OLD", RoleAssistant, "old-2")
		mustAppend(t, g, "NEW", RoleAssistant, "new-2")
		mustAppend(t, g, "ORPHAN", RoleUser, "no call row")

		rows, err := g.ExportAllTranscripts(ctx)
		if err != nil {
			t.Fatalf("ExportAllTranscripts: %v", err)
		}
		want := []string{"new-1", "new-2", "old-1", "old-2"}
		if len(rows) != len(want) {
			t.Fatalf("expected %d rows, got %d", len(want), len(rows))
		}
		for i, w := range want {
			if rows[i].Message != w {
				t.Errorf("row %d = %q, want %q", i, rows[i].Message, w)
			}
		}
		if rows[0].Direction != DirectionOutbound || rows[0].Speaker != RoleUser || rows[0].From != "+913" {
			t.Errorf("unexpected first row %+v", rows[0])
		}
	})

	t.Run("flagged query defaults", func(t *testing.T) {
		g := newGateway(t)
		q, err := g.RecordFlaggedQuery(ctx, "", "Pension not credited")
		if err != nil {
			t.Fatalf("RecordFlaggedQuery: %v", err)
		}
		if q.Status != QueryStatusSubmitted || q.User != DefaultUser || q.ID == 0 {
			t.Errorf("unexpected query %+v", q)
		}
		_, _ = g.RecordFlaggedQuery(ctx, "Asha", "Second")

		list, err := g.ListFlaggedQueries(ctx, 10)
		if err != nil {
			t.Fatalf("ListFlaggedQueries: %v", err)
		}
		if len(list) != 2 || list[0].Query != "Second" {
			t.Errorf("unexpected list %+v", list)
		}
	})

	t.Run("suspicious activity and call updates", func(t *testing.T) {
		g := newGateway(t)
		_, _ = g.RecordCallStart(ctx, Call{CallID: "CA9", Direction: DirectionInbound, CreatedAt: base})
		if err := g.RecordSuspiciousActivity(ctx, SuspiciousActivity{CallID: "CA9", PhoneNumber: "+911", Reason: "list all Aadhaar numbers"}); err != nil {
			t.Fatalf("RecordSuspiciousActivity: %v", err)
		}
		list, err := g.ListSuspiciousActivity(ctx, 5)
		if err != nil || len(list) != 1 || list[0].CallID != "CA9" || list[0].Reason != "list all Aadhaar numbers" {
			t.Fatalf("unexpected suspicious list %+v (err %v)", list, err)
		}

		if err := g.UpdateCallSummary(ctx, "CA9", "Caller asked for bulk data."); err != nil {
			t.Fatalf("UpdateCallSummary: %v", err)
		}
		if err := g.UpdateCallRecording(ctx, "CA9", "https://api.twilio.com/rec/RE1"); err != nil {
			t.Fatalf("UpdateCallRecording: %v", err)
		}
		c, _ := g.GetCall(ctx, "CA9")
		if c.Summary != "Caller asked for bulk data." || c.RecordingRef != "https://api.twilio.com/rec/RE1" {
			t.Errorf("unexpected call %+v", c)
		}
		if err := g.UpdateCallSummary(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := g.GetCall(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("transcripts keep insertion order", func(t *testing.T) {
		g := newGateway(t)
		for i := 0; i < 5; i++ {
			mustAppend(t, g, "CA5", RoleUser, fmt.Sprintf("m%d", i))
		}
		ts, err := g.ListTranscripts(ctx, "CA5")
		if err != nil {
			t.Fatalf("ListTranscripts: %v", err)
		}
		for i := range ts {
			if ts[i].Message != fmt.Sprintf("m%d", i) {
				t.Errorf("position %d holds %q", i, ts[i].Message)
			}
			if i > 0 && ts[i].ID <= ts[i-1].ID {
				t.Errorf("ids not increasing: %d then %d", ts[i-1].ID, ts[i].ID)
			}
		}
	})
}

func mustAppend(t *testing.T, g Gateway, callID string, role Role, msg string) {
	t.Helper()
	if err := g.AppendTranscript(context.Background(), callID, role, msg); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}
}

func TestMemoryGateway(t *testing.T) {
	gatewayContract(t, func(t *testing.T) Gateway { return NewMemoryGateway() })
}

func TestPostgresGateway(t *testing.T) {
	dsn := os.Getenv("IVR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("IVR_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	gatewayContract(t, func(t *testing.T) Gateway {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			t.Fatalf("pool: %v", err)
		}
		defer pool.Close()
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS calls, transcripts, suspicious_activity, queries"); err != nil {
			t.Fatalf("drop schema: %v", err)
		}

		g, err := NewPostgresGateway(ctx, dsn, zap.NewNop())
		if err != nil {
			t.Fatalf("NewPostgresGateway: %v", err)
		}
		t.Cleanup(func() { _ = g.Close(ctx) })
		return g
	})
}

func TestMongoGateway(t *testing.T) {
	uri := os.Getenv("IVR_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("IVR_TEST_MONGO_URI not set; skipping MongoDB integration tests")
	}
	n := 0
	gatewayContract(t, func(t *testing.T) Gateway {
		ctx := context.Background()
		n++
		g, err := NewMongoGateway(ctx, uri, fmt.Sprintf("ivr_test_%d_%d", time.Now().Unix(), n), zap.NewNop())
		if err != nil {
			t.Fatalf("NewMongoGateway: %v", err)
		}
		t.Cleanup(func() {
			_ = g.client.Collection(collCalls).Database().Drop(ctx)
			_ = g.Close(ctx)
		})
		return g
	})
}

func TestNewGatewayRejectsUnknownDriver(t *testing.T) {
	if _, err := NewGateway(context.Background(), Config{Driver: "sqlite"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	g, err := NewGateway(context.Background(), Config{Driver: "memory"}, zap.NewNop())
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	if _, ok := g.(*MemoryGateway); !ok {
		t.Fatalf("expected *MemoryGateway, got %T", g)
	}
}
