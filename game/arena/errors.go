package arena

import (
	"errors"
	"fmt"
	"math/big"
)

// Rejection sentinels. Every rejection leaves state untouched.
var (
	ErrInvalidParameter = errors.New("arena: invalid parameter")
	ErrIncorrectPayment = errors.New("arena: incorrect payment")
	ErrEntityNotFound   = errors.New("arena: waifu not found")
	ErrNotOwner         = errors.New("arena: caller is not the owner")
	ErrCooldownActive   = errors.New("arena: cooldown active")
	ErrNotAuthorized    = errors.New("arena: caller is not the administrator")
	ErrTransferFailed   = errors.New("arena: payout transfer failed")
)

// PaymentError reports the exact amount required against what was attached.
type PaymentError struct {
	Expected *big.Int
	Received *big.Int
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("arena: incorrect payment: %s payment, expected %s wei, received %s wei",
		e.Direction(), e.Expected, e.Received)
}

func (e *PaymentError) Unwrap() error { return ErrIncorrectPayment }

// Direction is "insufficient" or "excess".
func (e *PaymentError) Direction() string {
	if e.Received.Cmp(e.Expected) < 0 {
		return "insufficient"
	}
	return "excess"
}

// CooldownError carries the earliest time the action becomes eligible.
type CooldownError struct {
	Class      ActionClass
	EligibleAt uint64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("arena: cooldown active: %s eligible at %d", e.Class, e.EligibleAt)
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParameter}, args...)...)
}

// Error kinds as reported to clients, audit and metrics.
const (
	KindOK               = "ok"
	KindInvalidParameter = "invalid_parameter"
	KindIncorrectPayment = "incorrect_payment"
	KindEntityNotFound   = "entity_not_found"
	KindNotOwner         = "not_owner"
	KindCooldownActive   = "cooldown_active"
	KindNotAuthorized    = "not_authorized"
	KindTransferFailed   = "transfer_failed"
	KindInternal         = "internal"
)

// KindOf classifies err. Nil is KindOK; anything that is not a rejection is KindInternal.
func KindOf(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrIncorrectPayment):
		return KindIncorrectPayment
	case errors.Is(err, ErrEntityNotFound):
		return KindEntityNotFound
	case errors.Is(err, ErrNotOwner):
		return KindNotOwner
	case errors.Is(err, ErrCooldownActive):
		return KindCooldownActive
	case errors.Is(err, ErrNotAuthorized):
		return KindNotAuthorized
	case errors.Is(err, ErrTransferFailed):
		return KindTransferFailed
	}
	return KindInternal
}

// IsRejection reports whether err is a deterministic rejection of the caller's input.
func IsRejection(err error) bool {
	k := KindOf(err)
	return k != KindOK && k != KindInternal
}
