package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

const paymentColumns = `
	id, reservation_id, method, amount, status, gateway_charge_id, gateway_charge_url,
	paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (*entity.Payment, error) {
	var p entity.Payment
	var chargeID, chargeURL sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.ReservationID,
		&p.Method,
		&p.Amount,
		&p.Status,
		&chargeID,
		&chargeURL,
		&paidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.GatewayChargeID = nullString(chargeID)
	p.GatewayChargeURL = nullString(chargeURL)
	p.PaidAt = nullTime(paidAt)
	return &p, nil
}

func paymentStatuses(statuses []entity.PaymentStatus) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func (r queries) GetPayment(ctx context.Context, reservationID int64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reservation_id = $1`

	p, err := scanPayment(r.q.QueryRowContext(ctx, query, reservationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment of reservation %d: %w", reservationID, notFound(err))
	}
	return p, nil
}

func (r queries) GetPaymentByCharge(ctx context.Context, chargeID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_charge_id = $1`

	p, err := scanPayment(r.q.QueryRowContext(ctx, query, chargeID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by charge %s: %w", chargeID, notFound(err))
	}
	return p, nil
}

func (t *pgTx) LockPayment(ctx context.Context, reservationID int64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reservation_id = $1 FOR UPDATE`

	p, err := scanPayment(t.q.QueryRowContext(ctx, query, reservationID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment of reservation %d: %w", reservationID, notFound(err))
	}
	return p, nil
}

func (t *pgTx) CreatePayment(ctx context.Context, p *entity.Payment) error {
	query := `
		INSERT INTO payments (
			reservation_id, method, amount, status, gateway_charge_id, gateway_charge_url,
			paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (reservation_id) DO NOTHING
		RETURNING id
	`

	err := t.q.QueryRowContext(ctx, query,
		p.ReservationID,
		p.Method,
		p.Amount,
		p.Status,
		p.GatewayChargeID,
		p.GatewayChargeURL,
		p.PaidAt,
		p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return fmt.Errorf("failed to create payment: %w", entity.ErrDuplicate)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	p.UpdatedAt = p.CreatedAt
	return nil
}

func (t *pgTx) UpdateOpenPayment(ctx context.Context, p *entity.Payment) (bool, error) {
	query := `
		UPDATE payments SET
			method = $2,
			amount = $3,
			status = $4,
			gateway_charge_id = $5,
			gateway_charge_url = $6,
			updated_at = $7
		WHERE id = $1 AND status = ANY($8)
	`
	res, err := t.q.ExecContext(ctx, query,
		p.ID,
		p.Method,
		p.Amount,
		p.Status,
		p.GatewayChargeID,
		p.GatewayChargeURL,
		p.UpdatedAt,
		paymentStatuses(entity.OpenPaymentStatuses),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("failed to update payment %d: %w", p.ID, entity.ErrDuplicate)
		}
		return false, fmt.Errorf("failed to update payment %d: %w", p.ID, err)
	}
	return affected(res)
}

// TransitionPayment stamps paid_at when moving to PAID.
func (t *pgTx) TransitionPayment(ctx context.Context, id int64, from []entity.PaymentStatus, to entity.PaymentStatus, now time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = $2,
			paid_at = CASE WHEN $2 = 'PAID' THEN $3 ELSE paid_at END,
			updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`
	res, err := t.q.ExecContext(ctx, query, id, to, now, paymentStatuses(from))
	if err != nil {
		return false, fmt.Errorf("failed to move payment %d to %s: %w", id, to, err)
	}
	return affected(res)
}
