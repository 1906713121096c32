package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the coarse reconciliation status of the puppeteer.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusAwaitingAck Status = "awaiting_ack"
	StatusTimedOut    Status = "timed_out"
	StatusNeedsResync Status = "needs_resync"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusAwaitingAck, StatusTimedOut, StatusNeedsResync:
		return true
	}
	return false
}

// AcceptsSubmissions reports whether new instructions may be dispatched.
func (s Status) AcceptsSubmissions() bool {
	return s != StatusNeedsResync
}

type TransferStatus string

const (
	TransferPending      TransferStatus = "pending"
	TransferAcknowledged TransferStatus = "acknowledged"
	TransferTimedOut     TransferStatus = "timed_out"
)

func (s TransferStatus) Valid() bool {
	switch s {
	case TransferPending, TransferAcknowledged, TransferTimedOut:
		return true
	}
	return false
}

func (s TransferStatus) Terminal() bool {
	return s == TransferAcknowledged || s == TransferTimedOut
}

// AckOutcome classifies a channel event for a dispatched packet.
type AckOutcome string

const (
	// AckSuccess is a result acknowledgement from the remote chain.
	AckSuccess AckOutcome = "success"
	// AckError is an error acknowledgement: the remote chain rejected the
	// instruction. It is not retriable.
	AckError AckOutcome = "error"
	// AckTimeout is a packet timeout on the channel. It is retriable.
	AckTimeout AckOutcome = "timeout"
)

func (o AckOutcome) Valid() bool {
	switch o {
	case AckSuccess, AckError, AckTimeout:
		return true
	}
	return false
}

// Retriable reports whether the failure leaves the caller free to resubmit.
func (o AckOutcome) Retriable() bool {
	return o == AckTimeout
}

type ICAStatus string

const (
	ICANone       ICAStatus = "none"
	ICAInProgress ICAStatus = "in_progress"
	ICARegistered ICAStatus = "registered"
	ICAClosed     ICAStatus = "closed"
)

// IBCFees is the relayer fee schedule attached to every dispatched packet.
type IBCFees struct {
	RecvFee     decimal.Decimal `json:"recv_fee"`
	AckFee      decimal.Decimal `json:"ack_fee"`
	TimeoutFee  decimal.Decimal `json:"timeout_fee"`
	RegisterFee decimal.Decimal `json:"register_fee"`
}

type Config struct {
	ConnectionID string    `json:"connection_id"`
	PortID       string    `json:"port_id"`
	UpdatePeriod uint64    `json:"update_period"`
	RemoteDenom  string    `json:"remote_denom"`
	Owner        string    `json:"owner"`
	Fees         IBCFees   `json:"fees"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaxUpdatePeriod is the largest update period, in seconds, that still fits
// in a time.Duration.
const MaxUpdatePeriod = uint64(math.MaxInt64 / int64(time.Second))

// UpdatePeriodDuration converts the update cadence (seconds) to a duration.
func (c Config) UpdatePeriodDuration() time.Duration {
	return time.Duration(c.UpdatePeriod) * time.Second
}

// ConfigPatch is a partial owner-issued config update. Nil fields are kept.
type ConfigPatch struct {
	ConnectionID *string  `json:"connection_id,omitempty"`
	PortID       *string  `json:"port_id,omitempty"`
	UpdatePeriod *uint64  `json:"update_period,omitempty"`
	RemoteDenom  *string  `json:"remote_denom,omitempty"`
	Owner        *string  `json:"owner,omitempty"`
	Fees         *IBCFees `json:"fees,omitempty"`
}

func (p ConfigPatch) Apply(cfg Config) Config {
	if p.ConnectionID != nil {
		cfg.ConnectionID = *p.ConnectionID
	}
	if p.PortID != nil {
		cfg.PortID = *p.PortID
	}
	if p.UpdatePeriod != nil {
		cfg.UpdatePeriod = *p.UpdatePeriod
	}
	if p.RemoteDenom != nil {
		cfg.RemoteDenom = *p.RemoteDenom
	}
	if p.Owner != nil {
		cfg.Owner = *p.Owner
	}
	if p.Fees != nil {
		cfg.Fees = *p.Fees
	}
	return cfg
}

type Delegation struct {
	Validator string          `json:"validator"`
	Amount    decimal.Decimal `json:"amount"`
}

// Snapshot is a remote view of the interchain account's delegations taken at
// a remote height.
type Snapshot struct {
	Height      int64        `json:"height"`
	Delegations []Delegation `json:"delegations"`
}

type ICA struct {
	Status    ICAStatus `json:"status"`
	Address   string    `json:"address,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
}

// State is the authoritative reconciliation state. Pending is derived from
// the ledger on every read.
type State struct {
	Status     Status     `json:"status"`
	Snapshot   Snapshot   `json:"snapshot"`
	SnapshotAt *time.Time `json:"snapshot_at,omitempty"`
	Pending    []uint64   `json:"pending"`
	ICA        ICA        `json:"ica"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Transfer is one ledger entry.
type Transfer struct {
	Sequence    uint64          `json:"sequence"`
	ChannelID   string          `json:"channel_id"`
	Kind        InstructionKind `json:"kind"`
	Target      string          `json:"target"`
	Amount      decimal.Decimal `json:"amount"`
	Denom       string          `json:"denom"`
	Status      TransferStatus  `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
	TimeoutAt   time.Time       `json:"timeout_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// Ack is an asynchronous channel callback for a dispatched packet.
type Ack struct {
	Sequence uint64     `json:"sequence"`
	Outcome  AckOutcome `json:"outcome"`
	Snapshot *Snapshot  `json:"snapshot,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type AckResult struct {
	Sequence uint64         `json:"sequence"`
	Ignored  bool           `json:"ignored"`
	Transfer TransferStatus `json:"transfer_status,omitempty"`
	Status   Status         `json:"status"`
}

// DelegationEstimate splits one validator's figure into confirmed and pending
// portions.
type DelegationEstimate struct {
	Validator        string          `json:"validator"`
	Confirmed        decimal.Decimal `json:"confirmed"`
	PendingDelta     decimal.Decimal `json:"pending_delta"`
	Estimated        decimal.Decimal `json:"estimated"`
	PendingSequences []uint64        `json:"pending_sequences,omitempty"`
}

type DelegationsResponse struct {
	Height           int64                `json:"height"`
	Delegations      []DelegationEstimate `json:"delegations"`
	PendingSequences []uint64             `json:"pending_sequences"`
	TotalConfirmed   decimal.Decimal      `json:"total_confirmed"`
	TotalEstimated   decimal.Decimal      `json:"total_estimated"`
	FullyConfirmed   bool                 `json:"fully_confirmed"`
}

// ChannelEvent is one row of the audit trail.
type ChannelEvent struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	Sequence  *uint64   `json:"sequence,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	EventSubmit        = "submit"
	EventAck           = "ack"
	EventAckError      = "ack_error"
	EventTimeout       = "timeout"
	EventAckIgnored    = "ack_ignored"
	EventChannelOpen   = "channel_open"
	EventChannelClose  = "channel_close"
	EventICARegister   = "ica_register"
	EventResync        = "resync"
	EventSnapshot      = "snapshot"
	EventConfigUpdate  = "config_update"
	EventInstantiate   = "instantiate"
	EventStatusChanged = "status_changed"
)

// OutboxPacket is an encoded interchain account packet waiting for relay.
type OutboxPacket struct {
	PacketID  string    `json:"packet_id"`
	Sequence  uint64    `json:"sequence"`
	PortID    string    `json:"port_id"`
	ChannelID string    `json:"channel_id"`
	TypeURL   string    `json:"type_url"`
	Data      []byte    `json:"data"`
	Memo      string    `json:"memo,omitempty"`
	Fees      IBCFees   `json:"fees"`
	TimeoutAt time.Time `json:"timeout_at"`
	CreatedAt time.Time `json:"created_at"`
}
