package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ai-code-relay/internal/model"
	"github.com/sakif/ai-code-relay/internal/repository"
)

var _ repository.CallRepository = (*DB)(nil)

// Record appends a call to the log, filling in ID and CreatedAt.
//
// xid IDs start with a timestamp, so they sort by creation time and double
// as a tiebreaker when two calls land in the same instant.
func (db *DB) Record(ctx context.Context, rec *model.CallRecord) error {
	rec.ID = xid.New().String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO calls (id, kind, backend, outcome, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Kind),
		rec.Backend,
		rec.Outcome,
		rec.DurationMS,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording call: %w", err)
	}
	return nil
}

// ListRecent returns the newest calls first, optionally filtered by kind.
func (db *DB) ListRecent(ctx context.Context, opts repository.ListOptions) ([]model.CallRecord, error) {
	query := `SELECT id, kind, backend, outcome, duration_ms, created_at FROM calls`
	args := []any{}
	if opts.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(opts.Kind))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing calls: %w", err)
	}
	defer rows.Close()

	calls := []model.CallRecord{}
	for rows.Next() {
		var (
			c    model.CallRecord
			kind string
		)
		if err := rows.Scan(&c.ID, &kind, &c.Backend, &c.Outcome, &c.DurationMS, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning call: %w", err)
		}
		c.Kind = model.CallKind(kind)
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating calls: %w", err)
	}

	return calls, nil
}
