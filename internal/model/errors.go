package model

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateSequence  = errors.New("duplicate sequence")
	ErrUnknownSequence    = errors.New("unknown sequence")
	ErrNeedsResync        = errors.New("needs resync")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrICANotRegistered   = errors.New("interchain account not registered")
)

const (
	CodeUnauthorized       = "E_UNAUTHORIZED"
	CodeNotFound           = "E_NOT_FOUND"
	CodeDuplicateSequence  = "E_DUPLICATE_SEQUENCE"
	CodeUnknownSequence    = "E_UNKNOWN_SEQUENCE"
	CodeNeedsResync        = "E_NEEDS_RESYNC"
	CodeInvalidInstruction = "E_INVALID_INSTRUCTION"
	CodeAlreadyInitialized = "E_ALREADY_INITIALIZED"
	CodeICANotRegistered   = "E_ICA_NOT_REGISTERED"
	CodeRefInvalid         = "E_REF_INVALID"
	CodeInternal           = "E_INTERNAL"
)

// ErrorCode maps an error to its stable wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateSequence):
		return CodeDuplicateSequence
	case errors.Is(err, ErrUnknownSequence):
		return CodeUnknownSequence
	case errors.Is(err, ErrNeedsResync):
		return CodeNeedsResync
	case errors.Is(err, ErrInvalidInstruction):
		return CodeInvalidInstruction
	case errors.Is(err, ErrAlreadyInitialized):
		return CodeAlreadyInitialized
	case errors.Is(err, ErrICANotRegistered):
		return CodeICANotRegistered
	case errors.Is(err, ErrInvalidRequest):
		return CodeRefInvalid
	default:
		return CodeInternal
	}
}
