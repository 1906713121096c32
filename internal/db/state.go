package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/g960059/puppeteer/internal/model"
)

// StateRow is the persisted singleton state. The pending set is not stored;
// it is derived from the transfers table.
type StateRow struct {
	Status           model.Status
	SnapshotHeight   int64
	// SnapshotSequence is the acknowledged sequence that carried the stored
	// snapshot, or zero when it came from a resync or a remote query.
	SnapshotSequence uint64
	SnapshotAt       *time.Time
	ICA              model.ICA
	UpdatedAt        time.Time
}

func (q queries) InsertConfig(ctx context.Context, cfg model.Config) error {
	feesJSON, err := marshalJSON(cfg.Fees)
	if err != nil {
		return fmt.Errorf("marshal fees: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
INSERT INTO config(id, connection_id, port_id, update_period, remote_denom, owner, fees_json, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?, ?)
`, cfg.ConnectionID, cfg.PortID, int64(cfg.UpdatePeriod), cfg.RemoteDenom, cfg.Owner, feesJSON, ts(cfg.UpdatedAt))
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert config: %w", err)
	}
	return nil
}

// ReplaceConfig overwrites the live config record.
func (q queries) ReplaceConfig(ctx context.Context, cfg model.Config) error {
	feesJSON, err := marshalJSON(cfg.Fees)
	if err != nil {
		return fmt.Errorf("marshal fees: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
UPDATE config SET
	connection_id = ?,
	port_id = ?,
	update_period = ?,
	remote_denom = ?,
	owner = ?,
	fees_json = ?,
	updated_at = ?
WHERE id = 1
`, cfg.ConnectionID, cfg.PortID, int64(cfg.UpdatePeriod), cfg.RemoteDenom, cfg.Owner, feesJSON, ts(cfg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace config rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) GetConfig(ctx context.Context) (model.Config, error) {
	row := q.q.QueryRowContext(ctx, `
SELECT connection_id, port_id, update_period, remote_denom, owner, fees_json, updated_at
FROM config WHERE id = 1
`)
	var (
		cfg          model.Config
		updatePeriod int64
		feesJSON     string
		updatedAt    string
	)
	if err := row.Scan(&cfg.ConnectionID, &cfg.PortID, &updatePeriod, &cfg.RemoteDenom, &cfg.Owner, &feesJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Config{}, ErrNotFound
		}
		return model.Config{}, fmt.Errorf("scan config: %w", err)
	}
	cfg.UpdatePeriod = uint64(updatePeriod)
	if err := json.Unmarshal([]byte(feesJSON), &cfg.Fees); err != nil {
		return model.Config{}, fmt.Errorf("unmarshal fees: %w", err)
	}
	var err error
	cfg.UpdatedAt, err = parseTS(updatedAt)
	if err != nil {
		return model.Config{}, fmt.Errorf("parse config updated_at: %w", err)
	}
	return cfg, nil
}

func (q queries) InsertState(ctx context.Context, st StateRow) error {
	_, err := q.q.ExecContext(ctx, `
INSERT INTO state(id, status, snapshot_height, snapshot_sequence, snapshot_at, ica_status, ica_address, channel_id, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
`, string(st.Status), st.SnapshotHeight, int64(st.SnapshotSequence), nullableTS(st.SnapshotAt), string(icaStatusOrNone(st.ICA.Status)), st.ICA.Address, st.ICA.ChannelID, ts(st.UpdatedAt))
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert state: %w", err)
	}
	return nil
}

func (q queries) UpdateState(ctx context.Context, st StateRow) error {
	res, err := q.q.ExecContext(ctx, `
UPDATE state SET
	status = ?,
	snapshot_height = ?,
	snapshot_sequence = ?,
	snapshot_at = ?,
	ica_status = ?,
	ica_address = ?,
	channel_id = ?,
	updated_at = ?
WHERE id = 1
`, string(st.Status), st.SnapshotHeight, int64(st.SnapshotSequence), nullableTS(st.SnapshotAt), string(icaStatusOrNone(st.ICA.Status)), st.ICA.Address, st.ICA.ChannelID, ts(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update state rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) GetState(ctx context.Context) (StateRow, error) {
	row := q.q.QueryRowContext(ctx, `
SELECT status, snapshot_height, snapshot_sequence, snapshot_at, ica_status, ica_address, channel_id, updated_at
FROM state WHERE id = 1
`)
	var (
		st          StateRow
		status      string
		snapshotSeq int64
		snapshotAt  sql.NullString
		icaStatus   string
		updatedAt   string
	)
	if err := row.Scan(&status, &st.SnapshotHeight, &snapshotSeq, &snapshotAt, &icaStatus, &st.ICA.Address, &st.ICA.ChannelID, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StateRow{}, ErrNotFound
		}
		return StateRow{}, fmt.Errorf("scan state: %w", err)
	}
	st.Status = model.Status(status)
	st.SnapshotSequence = uint64(snapshotSeq)
	st.ICA.Status = model.ICAStatus(icaStatus)
	var err error
	if st.SnapshotAt, err = parseNullTS(snapshotAt); err != nil {
		return StateRow{}, fmt.Errorf("parse snapshot_at: %w", err)
	}
	if st.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return StateRow{}, fmt.Errorf("parse state updated_at: %w", err)
	}
	return st, nil
}

// ReplaceSnapshot swaps the confirmed delegation set for delegations. Rows
// for validators absent from delegations are removed.
func (q queries) ReplaceSnapshot(ctx context.Context, delegations []model.Delegation) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM snapshot_delegations`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	for _, d := range delegations {
		if _, err := q.q.ExecContext(ctx, `
INSERT INTO snapshot_delegations(validator, amount) VALUES (?, ?)
`, d.Validator, d.Amount.String()); err != nil {
			if isUniqueErr(err) {
				return fmt.Errorf("snapshot validator %s listed twice: %w", d.Validator, ErrDuplicate)
			}
			return fmt.Errorf("insert snapshot delegation: %w", err)
		}
	}
	return nil
}

func (q queries) ListSnapshot(ctx context.Context) ([]model.Delegation, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT validator, amount FROM snapshot_delegations ORDER BY validator ASC`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.Delegation, 0)
	for rows.Next() {
		var (
			d      model.Delegation
			amount string
		)
		if err := rows.Scan(&d.Validator, &amount); err != nil {
			return nil, fmt.Errorf("scan snapshot delegation: %w", err)
		}
		if d.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter snapshot: %w", err)
	}
	return out, nil
}

func icaStatusOrNone(s model.ICAStatus) model.ICAStatus {
	if s == "" {
		return model.ICANone
	}
	return s
}

// LoadState assembles the full reconciliation state. The pending set is read
// from the transfers table so it always matches the ledger.
func (q queries) LoadState(ctx context.Context) (model.State, error) {
	row, err := q.GetState(ctx)
	if err != nil {
		return model.State{}, err
	}
	delegations, err := q.ListSnapshot(ctx)
	if err != nil {
		return model.State{}, err
	}
	pending, err := q.ListTransfers(ctx, model.TransferPending)
	if err != nil {
		return model.State{}, err
	}
	return model.State{
		Status:     row.Status,
		Snapshot:   model.Snapshot{Height: row.SnapshotHeight, Delegations: delegations},
		SnapshotAt: row.SnapshotAt,
		Pending:    model.Sequences(pending),
		ICA:        row.ICA,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}
