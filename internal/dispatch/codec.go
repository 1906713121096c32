package dispatch

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/g960059/puppeteer/internal/model"
)

const (
	TypeURLMsgDelegate              = "/cosmos.staking.v1beta1.MsgDelegate"
	TypeURLMsgUndelegate            = "/cosmos.staking.v1beta1.MsgUndelegate"
	TypeURLMsgRedeemTokensForShares = "/cosmos.staking.v1beta1.MsgRedeemTokensForShares"
	TypeURLMsgSend                  = "/cosmos.bank.v1beta1.MsgSend"

	// PacketTypeURL names the envelope stored in the outbox.
	PacketTypeURL = "/ibc.applications.interchain_accounts.v1.InterchainAccountPacketData"

	packetTypeExecuteTx = 1
)

// EncodeInstruction builds the remote chain message for in, signed by the
// interchain account at delegator.
func EncodeInstruction(in model.Instruction, delegator, defaultDenom string) (*anypb.Any, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	denom := in.Denom
	if denom == "" {
		denom = defaultDenom
	}
	if denom == "" {
		return nil, fmt.Errorf("%w: denom is required", model.ErrInvalidInstruction)
	}
	coin := encodeCoin(denom, in.Amount.String())

	var (
		typeURL string
		b       []byte
	)
	switch in.Kind {
	case model.KindDelegate, model.KindUndelegate:
		typeURL = TypeURLMsgDelegate
		if in.Kind == model.KindUndelegate {
			typeURL = TypeURLMsgUndelegate
		}
		b = appendString(b, 1, delegator)
		b = appendString(b, 2, in.Target)
		b = appendBytes(b, 3, coin)
	case model.KindRedeem:
		typeURL = TypeURLMsgRedeemTokensForShares
		b = appendString(b, 1, delegator)
		b = appendBytes(b, 2, coin)
	case model.KindTransfer:
		typeURL = TypeURLMsgSend
		b = appendString(b, 1, delegator)
		b = appendString(b, 2, in.Target)
		b = appendBytes(b, 3, coin)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", model.ErrInvalidInstruction, in.Kind)
	}
	return &anypb.Any{TypeUrl: typeURL, Value: b}, nil
}

// EncodePacket wraps msgs into a CosmosTx inside an execute-tx
// InterchainAccountPacketData.
func EncodePacket(msgs []*anypb.Any, memo string) ([]byte, error) {
	var cosmosTx []byte
	for _, msg := range msgs {
		raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal any %s: %w", msg.GetTypeUrl(), err)
		}
		cosmosTx = appendBytes(cosmosTx, 1, raw)
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, packetTypeExecuteTx)
	b = appendBytes(b, 2, cosmosTx)
	if memo != "" {
		b = appendString(b, 3, memo)
	}
	return b, nil
}

// DecodePacket is the inverse of EncodePacket.
func DecodePacket(data []byte) ([]*anypb.Any, string, error) {
	var (
		cosmosTx []byte
		memo     string
		kind     uint64
	)
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			kind = n
		case num == 2 && typ == protowire.BytesType:
			cosmosTx = v
		case num == 3 && typ == protowire.BytesType:
			memo = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("decode packet: %w", err)
	}
	if kind != packetTypeExecuteTx {
		return nil, "", fmt.Errorf("decode packet: unexpected packet type %d", kind)
	}
	msgs := make([]*anypb.Any, 0)
	err = walkFields(cosmosTx, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != 1 || typ != protowire.BytesType {
			return nil
		}
		msg := &anypb.Any{}
		if err := proto.Unmarshal(v, msg); err != nil {
			return err
		}
		msgs = append(msgs, msg)
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("decode cosmos tx: %w", err)
	}
	return msgs, memo, nil
}

// Coin is a decoded cosmos Coin.
type Coin struct {
	Denom  string
	Amount string
}

// DecodeMessage extracts the addresses and coin of a message produced by
// EncodeInstruction.
func DecodeMessage(msg *anypb.Any) (from, to string, coin Coin, err error) {
	coinField := protowire.Number(3)
	if msg.GetTypeUrl() == TypeURLMsgRedeemTokensForShares {
		coinField = 2
	}
	err = walkFields(msg.GetValue(), func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1:
			from = string(v)
		case 2:
			if num == coinField {
				return decodeCoin(v, &coin)
			}
			to = string(v)
		case 3:
			return decodeCoin(v, &coin)
		}
		return nil
	})
	return from, to, coin, err
}

func decodeCoin(b []byte, coin *Coin) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1:
			coin.Denom = string(v)
		case 2:
			coin.Amount = string(v)
		}
		return nil
	})
}

func encodeCoin(denom, amount string) []byte {
	var b []byte
	b = appendString(b, 1, denom)
	b = appendString(b, 2, amount)
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return protowire.ParseError(tagLen)
		}
		b = b[tagLen:]
		switch typ {
		case protowire.VarintType:
			n, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, typ, nil, n); err != nil {
				return err
			}
			b = b[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return nil
}
