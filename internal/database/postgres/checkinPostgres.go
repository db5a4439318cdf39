package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

const checkinColumns = `
	id, reservation_id, check_in_time, check_out_time, mileage_before, mileage_after,
	fuel_level, damage_report, damage_cost, fine, before_photos, after_photos`

func scanCheckin(row rowScanner) (*entity.CheckinCheckout, error) {
	var c entity.CheckinCheckout
	var checkIn, checkOut sql.NullTime
	var mileageAfter sql.NullInt64
	err := row.Scan(
		&c.ID,
		&c.ReservationID,
		&checkIn,
		&checkOut,
		&c.MileageBefore,
		&mileageAfter,
		&c.FuelLevel,
		&c.DamageReport,
		&c.DamageCost,
		&c.Fine,
		pq.Array(&c.BeforePhotos),
		pq.Array(&c.AfterPhotos),
	)
	if err != nil {
		return nil, err
	}
	c.CheckInTime = nullTime(checkIn)
	c.CheckOutTime = nullTime(checkOut)
	if mileageAfter.Valid {
		v := mileageAfter.Int64
		c.MileageAfter = &v
	}
	return &c, nil
}

func (r queries) GetCheckin(ctx context.Context, reservationID int64) (*entity.CheckinCheckout, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkin_checkouts WHERE reservation_id = $1`

	c, err := scanCheckin(r.q.QueryRowContext(ctx, query, reservationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get checkin of reservation %d: %w", reservationID, notFound(err))
	}
	return c, nil
}

func (r queries) ListCheckins(ctx context.Context, from, to time.Time) ([]entity.CheckinCheckout, error) {
	query := `
		SELECT ` + checkinColumns + `
		FROM checkin_checkouts
		WHERE check_in_time >= $1 AND check_in_time < $2
		ORDER BY check_in_time
	`

	rows, err := r.q.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkins: %w", err)
	}
	defer rows.Close()

	var records []entity.CheckinCheckout
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkin: %w", err)
		}
		records = append(records, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkins: %w", err)
	}
	return records, nil
}

func (t *pgTx) CreateCheckin(ctx context.Context, c *entity.CheckinCheckout) error {
	query := `
		INSERT INTO checkin_checkouts (
			reservation_id, check_in_time, mileage_before, fuel_level, damage_report, before_photos
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := t.q.QueryRowContext(ctx, query,
		c.ReservationID,
		c.CheckInTime,
		c.MileageBefore,
		c.FuelLevel,
		c.DamageReport,
		pq.Array(c.BeforePhotos),
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create checkin: %w", entity.ErrDuplicate)
		}
		return fmt.Errorf("failed to create checkin: %w", err)
	}
	return nil
}

func (t *pgTx) CompleteCheckout(ctx context.Context, c *entity.CheckinCheckout) (bool, error) {
	query := `
		UPDATE checkin_checkouts SET
			check_out_time = $2,
			mileage_after = $3,
			damage_report = $4,
			damage_cost = $5,
			fine = $6,
			after_photos = $7
		WHERE reservation_id = $1
			AND check_in_time IS NOT NULL
			AND check_out_time IS NULL
	`
	res, err := t.q.ExecContext(ctx, query,
		c.ReservationID,
		c.CheckOutTime,
		c.MileageAfter,
		c.DamageReport,
		c.DamageCost,
		c.Fine,
		pq.Array(c.AfterPhotos),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check out reservation %d: %w", c.ReservationID, err)
	}
	return affected(res)
}
