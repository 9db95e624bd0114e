package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	KindNotFound               ErrorKind = "not_found"
	KindInsufficientStock      ErrorKind = "insufficient_stock"
	KindInvalidAdjustment      ErrorKind = "invalid_adjustment"
	KindInvalidState           ErrorKind = "invalid_state"
	KindReturnExceedsAvailable ErrorKind = "return_exceeds_available"
	KindDiscountInvalid        ErrorKind = "discount_invalid"
	KindSessionAlreadyOpen     ErrorKind = "session_already_open"
	KindSessionNotOpen         ErrorKind = "session_not_open"
	KindValidation             ErrorKind = "validation"
	KindInternal               ErrorKind = "internal"
)

// Discount rejection reasons, in the order the validator checks them.
const (
	DiscountReasonNotFound    = "not_found"
	DiscountReasonInactive    = "inactive"
	DiscountReasonNotYetValid = "not_yet_valid"
	DiscountReasonExpired     = "expired"
	DiscountReasonCapReached  = "usage_cap_reached"
)

// Error is the single error type raised by the engine. Two errors match under
// errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind
	Message string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientStock      = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrInvalidAdjustment      = &Error{Kind: KindInvalidAdjustment, Message: "invalid adjustment"}
	ErrInvalidState           = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrReturnExceedsAvailable = &Error{Kind: KindReturnExceedsAvailable, Message: "return exceeds available quantity"}
	ErrDiscountInvalid        = &Error{Kind: KindDiscountInvalid, Message: "discount invalid"}
	ErrSessionAlreadyOpen     = &Error{Kind: KindSessionAlreadyOpen, Message: "cash session already open"}
	ErrSessionNotOpen         = &Error{Kind: KindSessionNotOpen, Message: "cash session not open"}
	ErrValidation             = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrInternal               = &Error{Kind: KindInternal, Message: "internal error"}
)

func NotFound(entity string, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func InsufficientStock(productID string, available decimal.Decimal, requested decimal.Decimal) error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %s: available %s, requested %s", productID, available, requested),
	}
}

func InvalidAdjustment(msg string) error {
	return &Error{Kind: KindInvalidAdjustment, Message: msg}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func ReturnExceedsAvailable(saleLineID string, available decimal.Decimal, requested decimal.Decimal) error {
	return &Error{
		Kind:    KindReturnExceedsAvailable,
		Message: fmt.Sprintf("return of %s exceeds available %s for sale line %s", requested, available, saleLineID),
	}
}

func DiscountInvalid(reason string) error {
	return &Error{Kind: KindDiscountInvalid, Message: "discount code " + discountReasonText(reason), Reason: reason}
}

func SessionAlreadyOpen(actorID string) error {
	return &Error{Kind: KindSessionAlreadyOpen, Message: fmt.Sprintf("actor %s already has an open cash session", actorID)}
}

func SessionNotOpen(sessionID string) error {
	return &Error{Kind: KindSessionNotOpen, Message: fmt.Sprintf("cash session %s is not open", sessionID)}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal hides cause behind a generic message. The cause stays reachable
// through errors.Unwrap for logging.
func Internal(cause error) error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: cause}
}

// KindOf reports the kind of err. Anything that is not a domain error is internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsError translates err into a domain error, wrapping foreign errors as internal.
func AsError(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return Internal(err)
}

func discountReasonText(reason string) string {
	switch reason {
	case DiscountReasonNotFound:
		return "not found"
	case DiscountReasonInactive:
		return "is inactive"
	case DiscountReasonNotYetValid:
		return "is not yet valid"
	case DiscountReasonExpired:
		return "has expired"
	case DiscountReasonCapReached:
		return "usage cap reached"
	}
	return "is invalid"
}
