package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/g960059/puppeteer/internal/model"
)

// NextSequence allocates the next packet sequence for portID. Sequences are
// per port and never restart, so a reopened channel cannot reuse one.
func (q queries) NextSequence(ctx context.Context, portID string) (uint64, error) {
	if _, err := q.q.ExecContext(ctx, `
INSERT INTO channel_sequences(port_id, last_sequence) VALUES (?, 1)
ON CONFLICT(port_id) DO UPDATE SET last_sequence = last_sequence + 1
`, portID); err != nil {
		return 0, fmt.Errorf("bump channel sequence: %w", err)
	}
	var seq int64
	if err := q.q.QueryRowContext(ctx, `SELECT last_sequence FROM channel_sequences WHERE port_id = ?`, portID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read channel sequence: %w", err)
	}
	return uint64(seq), nil
}

func (q queries) InsertOutboxPacket(ctx context.Context, pkt model.OutboxPacket) error {
	feesJSON, err := marshalJSON(pkt.Fees)
	if err != nil {
		return fmt.Errorf("marshal fees: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
INSERT INTO outbox(packet_id, sequence, port_id, channel_id, type_url, data, memo, fees_json, timeout_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, pkt.PacketID, int64(pkt.Sequence), pkt.PortID, pkt.ChannelID, pkt.TypeURL, pkt.Data, pkt.Memo, feesJSON, ts(pkt.TimeoutAt), ts(pkt.CreatedAt))
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert outbox packet: %w", err)
	}
	return nil
}

// ListOutbox pages packets with a sequence greater than after.
func (q queries) ListOutbox(ctx context.Context, after uint64, limit int) ([]model.OutboxPacket, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.q.QueryContext(ctx, `
SELECT packet_id, sequence, port_id, channel_id, type_url, data, memo, fees_json, timeout_at, created_at
FROM outbox
WHERE sequence > ?
ORDER BY sequence ASC
LIMIT ?
`, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.OutboxPacket, 0)
	for rows.Next() {
		var (
			pkt       model.OutboxPacket
			sequence  int64
			feesJSON  string
			timeoutAt string
			createdAt string
		)
		if err := rows.Scan(&pkt.PacketID, &sequence, &pkt.PortID, &pkt.ChannelID, &pkt.TypeURL, &pkt.Data, &pkt.Memo, &feesJSON, &timeoutAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox packet: %w", err)
		}
		pkt.Sequence = uint64(sequence)
		if err := json.Unmarshal([]byte(feesJSON), &pkt.Fees); err != nil {
			return nil, fmt.Errorf("unmarshal outbox fees: %w", err)
		}
		if pkt.TimeoutAt, err = parseTS(timeoutAt); err != nil {
			return nil, fmt.Errorf("parse outbox timeout_at: %w", err)
		}
		if pkt.CreatedAt, err = parseTS(createdAt); err != nil {
			return nil, fmt.Errorf("parse outbox created_at: %w", err)
		}
		out = append(out, pkt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter outbox: %w", err)
	}
	return out, nil
}
