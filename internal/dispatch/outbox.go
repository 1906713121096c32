package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/g960059/puppeteer/internal/model"
)

// Store is the transactional slice of the database the outbox writes to.
type Store interface {
	NextSequence(ctx context.Context, portID string) (uint64, error)
	InsertOutboxPacket(ctx context.Context, pkt model.OutboxPacket) error
}

// Request is one instruction to put on the channel.
type Request struct {
	PortID      string
	ChannelID   string
	Delegator   string
	Denom       string
	Instruction model.Instruction
	Fees        model.IBCFees
	Timeout     time.Duration
	Memo        string
	Now         time.Time
}

// Channel assigns a sequence to an instruction and queues it for relay.
// Dispatch runs inside the caller's transaction so the packet and the ledger
// entry commit together.
type Channel interface {
	Dispatch(ctx context.Context, store Store, req Request) (model.OutboxPacket, error)
}

type Outbox struct{}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Dispatch(ctx context.Context, store Store, req Request) (model.OutboxPacket, error) {
	if req.PortID == "" || req.ChannelID == "" {
		return model.OutboxPacket{}, fmt.Errorf("dispatch: port and channel are required")
	}
	if req.Timeout <= 0 {
		return model.OutboxPacket{}, fmt.Errorf("dispatch: timeout must be positive")
	}
	msg, err := EncodeInstruction(req.Instruction, req.Delegator, req.Denom)
	if err != nil {
		return model.OutboxPacket{}, err
	}
	data, err := EncodePacket([]*anypb.Any{msg}, req.Memo)
	if err != nil {
		return model.OutboxPacket{}, err
	}
	seq, err := store.NextSequence(ctx, req.PortID)
	if err != nil {
		return model.OutboxPacket{}, err
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	pkt := model.OutboxPacket{
		PacketID:  uuid.NewString(),
		Sequence:  seq,
		PortID:    req.PortID,
		ChannelID: req.ChannelID,
		TypeURL:   PacketTypeURL,
		Data:      data,
		Memo:      req.Memo,
		Fees:      req.Fees,
		TimeoutAt: now.Add(req.Timeout),
		CreatedAt: now,
	}
	if err := store.InsertOutboxPacket(ctx, pkt); err != nil {
		return model.OutboxPacket{}, fmt.Errorf("queue packet %d: %w", seq, err)
	}
	return pkt, nil
}

// MessageTypes lists the type URLs carried by an encoded packet.
func MessageTypes(data []byte) ([]string, error) {
	msgs, _, err := DecodePacket(data)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.GetTypeUrl())
	}
	return out, nil
}
