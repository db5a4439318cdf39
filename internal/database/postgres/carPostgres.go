package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

const carColumns = `id, brand, model, plate_number, price_per_day, mileage, status, created_at, updated_at, deleted_at`

func scanCar(row rowScanner) (*entity.Car, error) {
	var car entity.Car
	var deletedAt sql.NullTime
	err := row.Scan(
		&car.ID,
		&car.Brand,
		&car.Model,
		&car.PlateNumber,
		&car.PricePerDay,
		&car.Mileage,
		&car.Status,
		&car.CreatedAt,
		&car.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	car.DeletedAt = nullTime(deletedAt)
	return &car, nil
}

// GetCar retrieves a car by its ID, including soft-deleted ones
func (r queries) GetCar(ctx context.Context, id int64) (*entity.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE id = $1`

	car, err := scanCar(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get car %d: %w", id, notFound(err))
	}
	return car, nil
}

// ListCars returns every car that was not deleted
func (r queries) ListCars(ctx context.Context) ([]entity.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE deleted_at IS NULL ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cars: %w", err)
	}
	defer rows.Close()

	var cars []entity.Car
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan car: %w", err)
		}
		cars = append(cars, *car)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cars: %w", err)
	}
	return cars, nil
}

// LockCar reads the car row with FOR UPDATE; concurrent bookings of the same
// car queue behind it until the transaction ends.
func (t *pgTx) LockCar(ctx context.Context, id int64) (*entity.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE id = $1 FOR UPDATE`

	car, err := scanCar(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock car %d: %w", id, notFound(err))
	}
	return car, nil
}

func (t *pgTx) UpdateCarStatus(ctx context.Context, carID int64, to entity.CarStatus, now time.Time) (bool, error) {
	query := `
		UPDATE cars SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> 'MAINTENANCE'
	`
	res, err := t.q.ExecContext(ctx, query, carID, to, now)
	if err != nil {
		return false, fmt.Errorf("failed to update car %d status: %w", carID, err)
	}
	return affected(res)
}

func (t *pgTx) ReturnCar(ctx context.Context, carID int64, mileage int64, now time.Time) error {
	query := `
		UPDATE cars SET
			mileage = $2,
			status = CASE WHEN status = 'MAINTENANCE' THEN status ELSE 'AVAILABLE' END,
			updated_at = $3
		WHERE id = $1
	`
	res, err := t.q.ExecContext(ctx, query, carID, mileage, now)
	if err != nil {
		return fmt.Errorf("failed to return car %d: %w", carID, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to return car %d: %w", carID, entity.ErrNotFound)
	}
	return nil
}
