package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	tracing "github.com/troikatech/voice-ivr/pkg/otel"
)

const ddl = `
CREATE TABLE IF NOT EXISTS calls (
    call_id       TEXT         PRIMARY KEY,
    from_number   TEXT         NOT NULL DEFAULT '',
    to_number     TEXT         NOT NULL DEFAULT '',
    direction     TEXT         NOT NULL,
    summary       TEXT         NOT NULL DEFAULT '',
    recording_ref TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calls_created_at
    ON calls (created_at DESC);

-- transcripts.call_id refers to calls.call_id but is not a foreign key: a
-- turn is kept even when its call row failed to insert.
CREATE TABLE IF NOT EXISTS transcripts (
    id          BIGSERIAL    PRIMARY KEY,
    call_id     TEXT         NOT NULL,
    role        TEXT         NOT NULL,
    message     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_call_id
    ON transcripts (call_id, id);

CREATE TABLE IF NOT EXISTS suspicious_activity (
    id            BIGSERIAL    PRIMARY KEY,
    call_id       TEXT         NOT NULL,
    phone_number  TEXT         NOT NULL DEFAULT '',
    reason        TEXT         NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS queries (
    id          BIGSERIAL    PRIMARY KEY,
    user_name   TEXT         NOT NULL,
    query_text  TEXT         NOT NULL,
    status      TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

DO $$
BEGIN
    IF EXISTS (SELECT 1 FROM information_schema.columns
               WHERE table_schema = current_schema()
                 AND table_name = 'queries' AND column_name = 'query') THEN
        ALTER TABLE queries RENAME COLUMN query TO query_text;
    END IF;
END $$;
`

// PostgresGateway stores everything in four tables on one pgx pool.
type PostgresGateway struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresGateway connects, pings and migrates.
func NewPostgresGateway(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresGateway, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres gateway: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres gateway: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres gateway: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("PostgreSQL connection established",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
	)
	return &PostgresGateway{pool: pool, logger: logger}, nil
}

// Migrate creates the schema. It is idempotent and runs on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

func (g *PostgresGateway) span(ctx context.Context, table, op string, fn func(context.Context) error) error {
	return tracing.WithDBSpan(ctx, "postgresql", table, op, fn)
}

func (g *PostgresGateway) RecordCallStart(ctx context.Context, call Call) (bool, error) {
	const q = `
		INSERT INTO calls (call_id, from_number, to_number, direction, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, now()))
		ON CONFLICT (call_id) DO NOTHING`

	var inserted bool
	err := g.span(ctx, "calls", "insert", func(ctx context.Context) error {
		var ts any
		if !call.CreatedAt.IsZero() {
			ts = call.CreatedAt
		}
		tag, err := g.pool.Exec(ctx, q, call.CallID, call.From, call.To, string(call.Direction), ts)
		if err != nil {
			return fmt.Errorf("postgres gateway: record call start: %w", err)
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	return inserted, err
}

func (g *PostgresGateway) AppendTranscript(ctx context.Context, callID string, role Role, message string) error {
	const q = `INSERT INTO transcripts (call_id, role, message) VALUES ($1, $2, $3)`

	return g.span(ctx, "transcripts", "insert", func(ctx context.Context) error {
		if _, err := g.pool.Exec(ctx, q, callID, string(role), message); err != nil {
			return fmt.Errorf("postgres gateway: append transcript: %w", err)
		}
		return nil
	})
}

func (g *PostgresGateway) RecordSuspiciousActivity(ctx context.Context, a SuspiciousActivity) error {
	const q = `INSERT INTO suspicious_activity (call_id, phone_number, reason) VALUES ($1, $2, $3)`

	return g.span(ctx, "suspicious_activity", "insert", func(ctx context.Context) error {
		if _, err := g.pool.Exec(ctx, q, a.CallID, a.PhoneNumber, a.Reason); err != nil {
			return fmt.Errorf("postgres gateway: record suspicious activity: %w", err)
		}
		return nil
	})
}

func (g *PostgresGateway) ListRecentCalls(ctx context.Context, limit int) ([]CallSummary, error) {
	const q = `
		SELECT c.call_id, c.from_number, c.to_number, c.direction, c.summary,
		       c.recording_ref, c.created_at, COALESCE(t.message, '')
		FROM   calls c
		LEFT JOIN LATERAL (
		    SELECT message FROM transcripts
		    WHERE  call_id = c.call_id
		    ORDER  BY id DESC
		    LIMIT  1
		) t ON true
		ORDER  BY c.created_at DESC, c.call_id DESC
		LIMIT  $1`

	var out []CallSummary
	err := g.span(ctx, "calls", "select", func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, q, limit)
		if err != nil {
			return fmt.Errorf("postgres gateway: list recent calls: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (CallSummary, error) {
			var s CallSummary
			var dir string
			err := row.Scan(&s.CallID, &s.From, &s.To, &dir, &s.Summary, &s.RecordingRef, &s.CreatedAt, &s.LastMessage)
			s.Direction = Direction(dir)
			return s, err
		})
		if err != nil {
			return fmt.Errorf("postgres gateway: scan recent calls: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *PostgresGateway) ExportAllTranscripts(ctx context.Context) ([]ExportRow, error) {
	const q = `
		SELECT c.created_at, c.direction, c.from_number, c.to_number, t.role, t.message
		FROM   transcripts t
		JOIN   calls c ON c.call_id = t.call_id
		ORDER  BY c.created_at DESC, c.call_id DESC, t.id ASC`

	var out []ExportRow
	err := g.span(ctx, "transcripts", "select", func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("postgres gateway: export transcripts: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ExportRow, error) {
			var r ExportRow
			var dir, role string
			err := row.Scan(&r.CallTime, &dir, &r.From, &r.To, &role, &r.Message)
			r.Direction, r.Speaker = Direction(dir), Role(role)
			return r, err
		})
		if err != nil {
			return fmt.Errorf("postgres gateway: scan export: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *PostgresGateway) RecordFlaggedQuery(ctx context.Context, user, query string) (*FlaggedQuery, error) {
	const q = `
		INSERT INTO queries (user_name, query_text, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	fq := &FlaggedQuery{User: normalizeUser(user), Query: query, Status: QueryStatusSubmitted}
	err := g.span(ctx, "queries", "insert", func(ctx context.Context) error {
		if err := g.pool.QueryRow(ctx, q, fq.User, fq.Query, fq.Status).Scan(&fq.ID, &fq.CreatedAt); err != nil {
			return fmt.Errorf("postgres gateway: record flagged query: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fq, nil
}

func (g *PostgresGateway) GetCall(ctx context.Context, callID string) (*Call, error) {
	const q = `
		SELECT call_id, from_number, to_number, direction, summary, recording_ref, created_at
		FROM   calls WHERE call_id = $1`

	var c Call
	err := g.span(ctx, "calls", "select", func(ctx context.Context) error {
		var dir string
		err := g.pool.QueryRow(ctx, q, callID).Scan(&c.CallID, &c.From, &c.To, &dir, &c.Summary, &c.RecordingRef, &c.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres gateway: get call: %w", err)
		}
		c.Direction = Direction(dir)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *PostgresGateway) ListTranscripts(ctx context.Context, callID string) ([]Transcript, error) {
	const q = `
		SELECT id, call_id, role, message, created_at
		FROM   transcripts WHERE call_id = $1
		ORDER  BY id`

	var out []Transcript
	err := g.span(ctx, "transcripts", "select", func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, q, callID)
		if err != nil {
			return fmt.Errorf("postgres gateway: list transcripts: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transcript, error) {
			var t Transcript
			var role string
			err := row.Scan(&t.ID, &t.CallID, &role, &t.Message, &t.CreatedAt)
			t.Role = Role(role)
			return t, err
		})
		if err != nil {
			return fmt.Errorf("postgres gateway: scan transcripts: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *PostgresGateway) updateCall(ctx context.Context, column, callID, value string) error {
	q := fmt.Sprintf(`UPDATE calls SET %s = $2 WHERE call_id = $1`, column)
	return g.span(ctx, "calls", "update", func(ctx context.Context) error {
		tag, err := g.pool.Exec(ctx, q, callID, value)
		if err != nil {
			return fmt.Errorf("postgres gateway: update %s: %w", column, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (g *PostgresGateway) UpdateCallSummary(ctx context.Context, callID, summary string) error {
	return g.updateCall(ctx, "summary", callID, summary)
}

func (g *PostgresGateway) UpdateCallRecording(ctx context.Context, callID, recordingRef string) error {
	return g.updateCall(ctx, "recording_ref", callID, recordingRef)
}

func (g *PostgresGateway) ListFlaggedQueries(ctx context.Context, limit int) ([]FlaggedQuery, error) {
	const q = `
		SELECT id, user_name, query_text, status, created_at
		FROM   queries ORDER BY id DESC LIMIT $1`

	var out []FlaggedQuery
	err := g.span(ctx, "queries", "select", func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, q, limit)
		if err != nil {
			return fmt.Errorf("postgres gateway: list queries: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (FlaggedQuery, error) {
			var fq FlaggedQuery
			err := row.Scan(&fq.ID, &fq.User, &fq.Query, &fq.Status, &fq.CreatedAt)
			return fq, err
		})
		if err != nil {
			return fmt.Errorf("postgres gateway: scan queries: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *PostgresGateway) ListSuspiciousActivity(ctx context.Context, limit int) ([]SuspiciousActivity, error) {
	const q = `
		SELECT id, call_id, phone_number, reason, created_at
		FROM   suspicious_activity ORDER BY id DESC LIMIT $1`

	var out []SuspiciousActivity
	err := g.span(ctx, "suspicious_activity", "select", func(ctx context.Context) error {
		rows, err := g.pool.Query(ctx, q, limit)
		if err != nil {
			return fmt.Errorf("postgres gateway: list suspicious activity: %w", err)
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (SuspiciousActivity, error) {
			var a SuspiciousActivity
			err := row.Scan(&a.ID, &a.CallID, &a.PhoneNumber, &a.Reason, &a.CreatedAt)
			return a, err
		})
		if err != nil {
			return fmt.Errorf("postgres gateway: scan suspicious activity: %w", err)
		}
		return nil
	})
	return out, err
}

func (g *PostgresGateway) Stats(ctx context.Context) (*Stats, error) {
	const q = `
		SELECT (SELECT count(*) FROM calls),
		       (SELECT count(*) FROM transcripts),
		       (SELECT count(*) FROM suspicious_activity),
		       (SELECT count(*) FROM queries)`

	var s Stats
	err := g.span(ctx, "calls", "count", func(ctx context.Context) error {
		if err := g.pool.QueryRow(ctx, q).Scan(&s.Calls, &s.Transcripts, &s.SuspiciousActivity, &s.Queries); err != nil {
			return fmt.Errorf("postgres gateway: stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

func (g *PostgresGateway) Close(context.Context) error {
	g.pool.Close()
	return nil
}
