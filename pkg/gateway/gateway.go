// Package gateway holds the provider-neutral charge model and the Xendit
// client that implements it.
package gateway

import (
	"errors"
)

type ChargeStatus string

const (
	ChargePending ChargeStatus = "PENDING"
	ChargePaid    ChargeStatus = "PAID"
	ChargeExpired ChargeStatus = "EXPIRED"
	ChargeFailed  ChargeStatus = "FAILED"
)

// ChargeRequest asks the provider for a new charge. Amount is in minor units.
type ChargeRequest struct {
	ExternalID  string
	Amount      int64
	Currency    string
	Method      string
	Description string
}

type ChargeRef struct {
	ID  string
	URL string
}

type ChargeState struct {
	ID       string
	Status   ChargeStatus
	Amount   int64
	Currency string
}

// Notification is the decoded body of an asynchronous payment callback.
type Notification struct {
	EventType    string
	ChargeID     string
	ChargeStatus ChargeStatus
}

// Succeeded reports whether the notification signals a completed payment.
func (n Notification) Succeeded() bool {
	return n.ChargeStatus == ChargePaid
}

var (
	ErrInvalidCallbackToken = errors.New("invalid callback token")
	ErrMalformedPayload     = errors.New("malformed notification payload")
)
