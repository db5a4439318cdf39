package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/config"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Infof("Successfully connected to PostgreSQL at %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return db, nil
}

// Migrations is the schema, applied in order. Every statement is idempotent.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS cars (
		id BIGSERIAL PRIMARY KEY,
		brand VARCHAR(100) NOT NULL,
		model VARCHAR(100) NOT NULL,
		plate_number VARCHAR(32) NOT NULL UNIQUE,
		price_per_day BIGINT NOT NULL CHECK (price_per_day >= 0),
		mileage BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE'
			CHECK (status IN ('AVAILABLE', 'BOOKED', 'MAINTENANCE')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		car_id BIGINT NOT NULL REFERENCES cars(id),
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		pickup_location VARCHAR(255) NOT NULL,
		dropoff_location VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL
			CHECK (status IN ('PENDING', 'WAITING_PAYMENT', 'CONFIRMED', 'COMPLETED', 'CANCELLED', 'EXPIRED')),
		lock_expires_at TIMESTAMPTZ,
		total_price BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at TIMESTAMPTZ,
		CHECK (start_date < end_date)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		reservation_id BIGINT NOT NULL UNIQUE REFERENCES reservations(id),
		method VARCHAR(20) NOT NULL
			CHECK (method IN ('CASH', 'TRANSFER', 'CREDIT_CARD', 'QR')),
		amount BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL
			CHECK (status IN ('PENDING', 'WAITING_VERIFY', 'PAID', 'EXPIRED')),
		gateway_charge_id VARCHAR(128) UNIQUE,
		gateway_charge_url TEXT,
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS checkin_checkouts (
		id BIGSERIAL PRIMARY KEY,
		reservation_id BIGINT NOT NULL UNIQUE REFERENCES reservations(id),
		check_in_time TIMESTAMPTZ,
		check_out_time TIMESTAMPTZ,
		mileage_before BIGINT NOT NULL DEFAULT 0,
		mileage_after BIGINT,
		fuel_level VARCHAR(32) NOT NULL DEFAULT '',
		damage_report TEXT NOT NULL DEFAULT '',
		damage_cost BIGINT NOT NULL DEFAULT 0,
		fine BIGINT NOT NULL DEFAULT 0,
		before_photos TEXT[] NOT NULL DEFAULT '{}',
		after_photos TEXT[] NOT NULL DEFAULT '{}',
		CHECK (check_out_time IS NULL OR check_in_time IS NOT NULL)
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_reservations_car_interval ON reservations(car_id, start_date, end_date) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_lock ON reservations(status, lock_expires_at) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_user_active ON reservations(user_id)
		WHERE status IN ('PENDING', 'WAITING_PAYMENT') AND deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_checkins_check_in_time ON checkin_checkouts(check_in_time)`,
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, migration := range Migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i, err)
		}
	}

	logrus.Infof("Applied %d migrations", len(Migrations))
	return nil
}
