package entity

import (
	"errors"
	"fmt"
)

var (
	// Returned by stores when a row does not exist; services translate it.
	ErrNotFound = errors.New("record not found")
	// Returned by stores when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// Kind is the closed set of domain failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindState
	KindExternalGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindExternalGateway:
		return "external_gateway"
	default:
		return "unknown"
	}
}

type Reason string

const (
	ReasonInvalidRange        Reason = "INVALID_RANGE"
	ReasonInvalidMethod       Reason = "INVALID_METHOD"
	ReasonInvalidInput        Reason = "INVALID_INPUT"
	ReasonInvalidMileage      Reason = "INVALID_MILEAGE"
	ReasonCarNotFound         Reason = "CAR_NOT_FOUND"
	ReasonReservationNotFound Reason = "RESERVATION_NOT_FOUND"
	ReasonPaymentNotFound     Reason = "PAYMENT_NOT_FOUND"
	ReasonNotOwner            Reason = "NOT_OWNER"
	ReasonOverlap             Reason = "OVERLAP"
	ReasonActiveExists        Reason = "ACTIVE_EXISTS"
	ReasonAmountTooLow        Reason = "AMOUNT_TOO_LOW"
	ReasonExpired             Reason = "EXPIRED"
	ReasonInvalidStatus       Reason = "INVALID_STATUS"
	ReasonNotConfirmed        Reason = "NOT_CONFIRMED"
	ReasonAlreadyCheckedIn    Reason = "ALREADY_CHECKED_IN"
	ReasonNotCheckedIn        Reason = "NOT_CHECKED_IN"
	ReasonAlreadyCheckedOut   Reason = "ALREADY_CHECKED_OUT"
	ReasonNotCheckinDay       Reason = "NOT_CHECKIN_DAY"
	ReasonGatewayFailure      Reason = "GATEWAY_FAILURE"
	ReasonGatewayMalformed    Reason = "GATEWAY_MALFORMED"
)

// Error is a domain failure with a machine-readable reason code.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, reason Reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(reason Reason, format string, args ...any) *Error {
	return newError(KindValidation, reason, format, args...)
}

func NotFoundError(reason Reason, format string, args ...any) *Error {
	return newError(KindNotFound, reason, format, args...)
}

func ForbiddenError(reason Reason, format string, args ...any) *Error {
	return newError(KindForbidden, reason, format, args...)
}

func ConflictError(reason Reason, format string, args ...any) *Error {
	return newError(KindConflict, reason, format, args...)
}

func StateError(reason Reason, format string, args ...any) *Error {
	return newError(KindState, reason, format, args...)
}

func ExternalGatewayError(reason Reason, err error, format string, args ...any) *Error {
	e := newError(KindExternalGateway, reason, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
