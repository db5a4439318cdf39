package entity

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "PENDING"
	PaymentStatusWaitingVerify PaymentStatus = "WAITING_VERIFY"
	PaymentStatusPaid          PaymentStatus = "PAID"
	PaymentStatusExpired       PaymentStatus = "EXPIRED"
)

// OpenPaymentStatuses may still move to PAID or EXPIRED.
var OpenPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusWaitingVerify,
}

func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusWaitingVerify
}

type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "CASH"
	PaymentMethodTransfer   PaymentMethod = "TRANSFER"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodQR         PaymentMethod = "QR"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCreditCard, PaymentMethodQR:
		return true
	}
	return false
}

// UsesGateway reports whether the method is settled by an external charge
// instead of an admin check.
func (m PaymentMethod) UsesGateway() bool {
	return m == PaymentMethodCreditCard || m == PaymentMethodQR
}

type Payment struct {
	ID               int64         `json:"id" db:"id"`
	ReservationID    int64         `json:"reservation_id" db:"reservation_id"`
	Method           PaymentMethod `json:"method" db:"method"`
	Amount           int64         `json:"amount" db:"amount"`
	Status           PaymentStatus `json:"status" db:"status"`
	GatewayChargeID  *string       `json:"gateway_charge_id,omitempty" db:"gateway_charge_id"`
	GatewayChargeURL *string       `json:"gateway_charge_url,omitempty" db:"gateway_charge_url"`
	PaidAt           *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// PaymentReceipt is returned by ConfirmPayment.
type PaymentReceipt struct {
	Payment   *Payment `json:"payment"`
	ChargeURL string   `json:"charge_url,omitempty"`
	Replayed  bool     `json:"replayed"`
}
