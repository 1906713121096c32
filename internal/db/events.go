package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/puppeteer/internal/model"
)

func (q queries) InsertChannelEvent(ctx context.Context, ev model.ChannelEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if _, err := q.q.ExecContext(ctx, `
INSERT INTO channel_events(event_id, kind, sequence, detail, created_at)
VALUES (?, ?, ?, ?, ?)
`, ev.EventID, ev.Kind, nullableSeq(ev.Sequence), ev.Detail, ts(ev.CreatedAt)); err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert channel event: %w", err)
	}
	return nil
}

// ListChannelEvents returns the newest events first. A nil sequence lists
// every event.
func (q queries) ListChannelEvents(ctx context.Context, sequence *uint64, limit int) ([]model.ChannelEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT event_id, kind, sequence, detail, created_at FROM channel_events`
	args := []any{}
	if sequence != nil {
		query += ` WHERE sequence = ?`
		args = append(args, int64(*sequence))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channel events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.ChannelEvent, 0)
	for rows.Next() {
		var (
			ev        model.ChannelEvent
			seq       sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&ev.EventID, &ev.Kind, &seq, &ev.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan channel event: %w", err)
		}
		if seq.Valid {
			v := uint64(seq.Int64)
			ev.Sequence = &v
		}
		if ev.CreatedAt, err = parseTS(createdAt); err != nil {
			return nil, fmt.Errorf("parse event created_at: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter channel events: %w", err)
	}
	return out, nil
}

// PurgeChannelEvents deletes audit rows created before cutoff. Ledger
// entries are never purged.
func (s *Store) PurgeChannelEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channel_events WHERE created_at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge channel events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge channel events rows: %w", err)
	}
	return n, nil
}
