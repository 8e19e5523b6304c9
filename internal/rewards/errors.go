package rewards

import "errors"

// Kind classifies ledger errors.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation errors are caused by caller input or account state; retrying with
	// corrected input may succeed.
	KindValidation
	// KindMath errors mean the inputs exceed the fixed-point range.
	KindMath
	// KindInternal errors are broken invariants.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindMath:
		return "math"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a ledger error with a stable code.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrAmountIsZero = &Error{
		Code:    "AmountIsZero",
		Kind:    KindValidation,
		Message: "the staking amount cannot be zero",
	}
	ErrInsufficientStakedAmount = &Error{
		Code:    "InsufficientStakedAmount",
		Kind:    KindValidation,
		Message: "insufficient staked amount for withdrawal",
	}
	ErrNoRewards = &Error{
		Code:    "NoRewards",
		Kind:    KindValidation,
		Message: "no rewards available to claim",
	}
	ErrAlreadyInitialized = &Error{
		Code:    "AlreadyInitialized",
		Kind:    KindValidation,
		Message: "pool is already initialized",
	}
	ErrMath = &Error{
		Code:    "MathError",
		Kind:    KindMath,
		Message: "arithmetic overflow",
	}
	ErrInvariant = &Error{
		Code:    "InvariantViolation",
		Kind:    KindInternal,
		Message: "ledger invariant violated",
	}
)

// KindOf returns the kind of a ledger error, or KindUnknown for anything else
// (custody and storage failures included).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable code of a ledger error, or "" if err is not one.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
