package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

const reservationColumns = `
	id, user_id, car_id, start_date, end_date, pickup_location, dropoff_location,
	status, lock_expires_at, total_price, created_at, updated_at, deleted_at`

func scanReservation(row rowScanner) (*entity.Reservation, error) {
	var r entity.Reservation
	var lockExpiresAt, deletedAt sql.NullTime
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.CarID,
		&r.StartDate,
		&r.EndDate,
		&r.PickupLocation,
		&r.DropoffLocation,
		&r.Status,
		&lockExpiresAt,
		&r.TotalPrice,
		&r.CreatedAt,
		&r.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	r.LockExpiresAt = nullTime(lockExpiresAt)
	r.DeletedAt = nullTime(deletedAt)
	return &r, nil
}

func (r queries) listReservations(ctx context.Context, query string, args ...any) ([]entity.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []entity.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}
	return reservations, nil
}

func reservationStatuses(statuses []entity.ReservationStatus) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func (r queries) GetReservation(ctx context.Context, id int64) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %d: %w", id, notFound(err))
	}
	return res, nil
}

func (r queries) ListReservationsByUser(ctx context.Context, userID int64) ([]entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`
	return r.listReservations(ctx, query, userID)
}

func (r queries) ListCarReservations(ctx context.Context, carID int64, start, end time.Time) ([]entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE ($1::bigint = 0 OR car_id = $1)
			AND deleted_at IS NULL
			AND status = ANY($2)
			AND start_date < $4
			AND end_date > $3
		ORDER BY car_id, start_date
	`
	blocking := []entity.ReservationStatus{
		entity.ReservationStatusPending,
		entity.ReservationStatusWaitingPayment,
		entity.ReservationStatusConfirmed,
	}
	return r.listReservations(ctx, query, carID, reservationStatuses(blocking), start, end)
}

func (r queries) FindActiveByUser(ctx context.Context, userID int64) (*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND deleted_at IS NULL AND status = ANY($2)
		LIMIT 1
	`
	res, err := scanReservation(r.q.QueryRowContext(ctx, query, userID, reservationStatuses(entity.ActiveStatuses)))
	if err != nil {
		return nil, fmt.Errorf("failed to find active reservation of user %d: %w", userID, notFound(err))
	}
	return res, nil
}

func (r queries) ListLapsed(ctx context.Context, now time.Time, after entity.LapsedCursor, limit int) ([]entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = ANY($1)
			AND deleted_at IS NULL
			AND lock_expires_at IS NOT NULL
			AND lock_expires_at < $2
			AND (lock_expires_at, id) > ($3, $4)
		ORDER BY lock_expires_at, id
		LIMIT $5
	`
	return r.listReservations(ctx, query, reservationStatuses(entity.ActiveStatuses), now, after.LockExpiresAt, after.ID, limit)
}

func (r queries) ListScheduled(ctx context.Context, from, to time.Time) ([]entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE deleted_at IS NULL
			AND status IN ('CONFIRMED', 'COMPLETED')
			AND ((start_date >= $1 AND start_date < $2) OR (end_date >= $1 AND end_date < $2))
		ORDER BY start_date
	`
	return r.listReservations(ctx, query, from, to)
}

func (t *pgTx) LockReservation(ctx context.Context, id int64) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock reservation %d: %w", id, notFound(err))
	}
	return res, nil
}

// CreateReservation inserts a new reservation. The partial unique index on
// active reservations per user rejects a second one.
func (t *pgTx) CreateReservation(ctx context.Context, res *entity.Reservation) error {
	query := `
		INSERT INTO reservations (
			user_id, car_id, start_date, end_date, pickup_location, dropoff_location,
			status, lock_expires_at, total_price, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id
	`

	err := t.q.QueryRowContext(ctx, query,
		res.UserID,
		res.CarID,
		res.StartDate,
		res.EndDate,
		res.PickupLocation,
		res.DropoffLocation,
		res.Status,
		res.LockExpiresAt,
		res.TotalPrice,
		res.CreatedAt,
	).Scan(&res.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create reservation: %w", entity.ErrDuplicate)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	res.UpdatedAt = res.CreatedAt
	return nil
}

func (t *pgTx) TransitionReservation(ctx context.Context, id int64, from []entity.ReservationStatus, to entity.ReservationStatus, now time.Time) (bool, error) {
	query := `
		UPDATE reservations SET
			status = $2,
			updated_at = $3,
			deleted_at = CASE WHEN $2 = 'CANCELLED' THEN $3 ELSE deleted_at END
		WHERE id = $1 AND status = ANY($4)
	`
	res, err := t.q.ExecContext(ctx, query, id, to, now, reservationStatuses(from))
	if err != nil {
		return false, fmt.Errorf("failed to move reservation %d to %s: %w", id, to, err)
	}
	return affected(res)
}

func (t *pgTx) ExpireReservation(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE reservations SET status = 'EXPIRED', updated_at = $2
		WHERE id = $1
			AND status = ANY($3)
			AND deleted_at IS NULL
			AND lock_expires_at IS NOT NULL
			AND lock_expires_at < $2
	`
	res, err := t.q.ExecContext(ctx, query, id, now, reservationStatuses(entity.ActiveStatuses))
	if err != nil {
		return false, fmt.Errorf("failed to expire reservation %d: %w", id, err)
	}
	return affected(res)
}

func (t *pgTx) CompleteReservation(ctx context.Context, id int64, finalTotal int64, now time.Time) (bool, error) {
	query := `
		UPDATE reservations SET status = 'COMPLETED', total_price = $2, updated_at = $3
		WHERE id = $1 AND status = 'CONFIRMED'
	`
	res, err := t.q.ExecContext(ctx, query, id, finalTotal, now)
	if err != nil {
		return false, fmt.Errorf("failed to complete reservation %d: %w", id, err)
	}
	return affected(res)
}
