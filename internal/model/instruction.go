package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// InstructionKind is the closed set of remote actions the puppeteer can
// dispatch.
type InstructionKind string

const (
	KindDelegate   InstructionKind = "delegate"
	KindUndelegate InstructionKind = "undelegate"
	KindRedeem     InstructionKind = "redeem"
	KindTransfer   InstructionKind = "transfer"
)

// ParseInstructionKind normalizes raw input to a known kind.
func ParseInstructionKind(raw string) (InstructionKind, error) {
	kind := InstructionKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case KindDelegate, KindUndelegate, KindRedeem, KindTransfer:
		return kind, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInstruction, raw)
}

// Instruction is a request to act on the remote chain. Target is the
// validator operator address for staking kinds and the recipient for
// transfers. A redeem names the liquid staking share denom it converts back
// into a delegation, which must belong to Target.
type Instruction struct {
	Kind   InstructionKind `json:"kind"`
	Target string          `json:"target"`
	Amount decimal.Decimal `json:"amount"`
	Denom  string          `json:"denom,omitempty"`
}

func (in Instruction) Validate() error {
	if _, err := ParseInstructionKind(string(in.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(in.Target) == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidInstruction)
	}
	if !in.Amount.IsInteger() || in.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be a positive integer", ErrInvalidInstruction)
	}
	if in.Kind == KindRedeem {
		validator, ok := ShareDenomValidator(in.Denom)
		if !ok || validator != strings.TrimSpace(in.Target) {
			return fmt.Errorf("%w: redeem denom %q is not a share denom of %s", ErrInvalidInstruction, in.Denom, in.Target)
		}
	}
	return nil
}

// ShareDenomValidator returns the validator a tokenized share denom
// ("<valoper>/<record id>") was minted from.
func ShareDenomValidator(denom string) (string, bool) {
	validator, record, ok := strings.Cut(denom, "/")
	if !ok || validator == "" || record == "" || strings.Contains(record, "/") {
		return "", false
	}
	return validator, true
}

// DelegationDelta returns the signed change the instruction applies to its
// target validator's delegation, and false for kinds that do not touch
// delegations.
func (in Instruction) DelegationDelta() (decimal.Decimal, bool) {
	switch in.Kind {
	case KindDelegate, KindRedeem:
		return in.Amount, true
	case KindUndelegate:
		return in.Amount.Neg(), true
	case KindTransfer:
		return decimal.Zero, false
	default:
		return decimal.Zero, false
	}
}

// Instruction rebuilds the instruction a ledger entry was recorded from.
func (t Transfer) Instruction() Instruction {
	return Instruction{Kind: t.Kind, Target: t.Target, Amount: t.Amount, Denom: t.Denom}
}

// Sequences extracts sequence numbers preserving order.
func Sequences(transfers []Transfer) []uint64 {
	out := make([]uint64, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, t.Sequence)
	}
	return out
}
