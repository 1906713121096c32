package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/g960059/puppeteer/internal/model"
)

const transferColumns = `sequence, channel_id, kind, target, amount, denom, status, submitted_at, timeout_at, resolved_at, reason`

func (q queries) InsertTransfer(ctx context.Context, t model.Transfer) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO transfers(sequence, channel_id, kind, target, amount, denom, status, submitted_at, timeout_at, resolved_at, reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, int64(t.Sequence), t.ChannelID, string(t.Kind), t.Target, t.Amount.String(), t.Denom, string(t.Status), ts(t.SubmittedAt), ts(t.TimeoutAt), nullableTS(t.ResolvedAt), t.Reason)
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// ResolveTransfer moves a pending entry to a terminal status. ErrNotFound
// means no pending entry carries the sequence.
func (q queries) ResolveTransfer(ctx context.Context, sequence uint64, status model.TransferStatus, resolvedAt time.Time, reason string) error {
	if !status.Terminal() {
		return fmt.Errorf("resolve transfer %d: status %q is not terminal", sequence, status)
	}
	res, err := q.q.ExecContext(ctx, `
UPDATE transfers SET status = ?, resolved_at = ?, reason = ?
WHERE sequence = ? AND status = 'pending'
`, string(status), ts(resolvedAt), reason, int64(sequence))
	if err != nil {
		return fmt.Errorf("resolve transfer %d: %w", sequence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve transfer rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) GetTransfer(ctx context.Context, sequence uint64) (model.Transfer, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE sequence = ?`, int64(sequence))
	return scanTransfer(row)
}

// ListTransfers returns entries in submission order. An empty status lists
// every entry.
func (q queries) ListTransfers(ctx context.Context, status model.TransferStatus) ([]model.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY submit_order ASC`
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter transfers: %w", err)
	}
	return out, nil
}

func (q queries) CountTransfers(ctx context.Context, status model.TransferStatus) (int, error) {
	var count int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfers WHERE status = ?`, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return count, nil
}

func scanTransfer(scanner interface{ Scan(dest ...any) error }) (model.Transfer, error) {
	var (
		t           model.Transfer
		sequence    int64
		kind        string
		amount      string
		status      string
		submittedAt string
		timeoutAt   string
		resolvedAt  sql.NullString
	)
	if err := scanner.Scan(&sequence, &t.ChannelID, &kind, &t.Target, &amount, &t.Denom, &status, &submittedAt, &timeoutAt, &resolvedAt, &t.Reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transfer{}, ErrNotFound
		}
		return model.Transfer{}, fmt.Errorf("scan transfer: %w", err)
	}
	t.Sequence = uint64(sequence)
	t.Kind = model.InstructionKind(kind)
	t.Status = model.TransferStatus(status)
	var err error
	if t.Amount, err = parseAmount(amount); err != nil {
		return model.Transfer{}, err
	}
	if t.SubmittedAt, err = parseTS(submittedAt); err != nil {
		return model.Transfer{}, fmt.Errorf("parse submitted_at: %w", err)
	}
	if t.TimeoutAt, err = parseTS(timeoutAt); err != nil {
		return model.Transfer{}, fmt.Errorf("parse timeout_at: %w", err)
	}
	if t.ResolvedAt, err = parseNullTS(resolvedAt); err != nil {
		return model.Transfer{}, fmt.Errorf("parse resolved_at: %w", err)
	}
	return t, nil
}
