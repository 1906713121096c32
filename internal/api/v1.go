package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/g960059/puppeteer/internal/model"
)

const SchemaVersion = "v1"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

type ConfigEnvelope struct {
	SchemaVersion string       `json:"schema_version"`
	GeneratedAt   time.Time    `json:"generated_at"`
	Config        model.Config `json:"config"`
}

type ConfigUpdateRequest struct {
	Sender string            `json:"sender"`
	Patch  model.ConfigPatch `json:"patch"`
}

type StateEnvelope struct {
	SchemaVersion string      `json:"schema_version"`
	GeneratedAt   time.Time   `json:"generated_at"`
	State         model.State `json:"state"`
}

type TransactionsEnvelope struct {
	SchemaVersion string           `json:"schema_version"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Transactions  []model.Transfer `json:"transactions"`
}

type TransactionEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Transaction   model.Transfer `json:"transaction"`
}

type DelegationsEnvelope struct {
	SchemaVersion string                    `json:"schema_version"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	Delegations   model.DelegationsResponse `json:"delegations"`
}

type SubmitRequest struct {
	Sender string          `json:"sender"`
	Kind   string          `json:"kind"`
	Target string          `json:"target"`
	Amount decimal.Decimal `json:"amount"`
	Denom  string          `json:"denom,omitempty"`
}

type AckEnvelope struct {
	SchemaVersion string          `json:"schema_version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Result        model.AckResult `json:"result"`
}

type ResyncRequest struct {
	Sender   string         `json:"sender"`
	Snapshot model.Snapshot `json:"snapshot"`
}

type SnapshotEnvelope struct {
	SchemaVersion string      `json:"schema_version"`
	GeneratedAt   time.Time   `json:"generated_at"`
	Applied       bool        `json:"applied"`
	State         model.State `json:"state"`
}

type ICARegisterRequest struct {
	Sender string `json:"sender"`
}

type ChannelOpenRequest struct {
	ChannelID string `json:"channel_id"`
	Address   string `json:"address"`
}

type ChannelCloseRequest struct {
	ChannelID string `json:"channel_id"`
}

type ICAEnvelope struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	ICA           model.ICA `json:"ica"`
}

// OutboxItem is a queued packet as a relayer sees it. Data is the encoded
// InterchainAccountPacketData.
type OutboxItem struct {
	PacketID     string        `json:"packet_id"`
	Sequence     uint64        `json:"sequence"`
	PortID       string        `json:"port_id"`
	ChannelID    string        `json:"channel_id"`
	TypeURL      string        `json:"type_url"`
	MessageTypes []string      `json:"message_types"`
	Data         []byte        `json:"data"`
	Memo         string        `json:"memo,omitempty"`
	Fees         model.IBCFees `json:"fees"`
	TimeoutAt    time.Time     `json:"timeout_at"`
	CreatedAt    time.Time     `json:"created_at"`
}

type OutboxEnvelope struct {
	SchemaVersion string       `json:"schema_version"`
	GeneratedAt   time.Time    `json:"generated_at"`
	Items         []OutboxItem `json:"items"`
	NextAfter     uint64       `json:"next_after"`
}

type EventsEnvelope struct {
	SchemaVersion string               `json:"schema_version"`
	GeneratedAt   time.Time            `json:"generated_at"`
	Events        []model.ChannelEvent `json:"events"`
}
