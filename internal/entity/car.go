package entity

import (
	"time"
)

type CarStatus string

const (
	CarStatusAvailable   CarStatus = "AVAILABLE"
	CarStatusBooked      CarStatus = "BOOKED"
	CarStatusMaintenance CarStatus = "MAINTENANCE"
)

type Car struct {
	ID          int64      `json:"id" db:"id"`
	Brand       string     `json:"brand" db:"brand"`
	Model       string     `json:"model" db:"model"`
	PlateNumber string     `json:"plate_number" db:"plate_number"`
	PricePerDay int64      `json:"price_per_day" db:"price_per_day"`
	Mileage     int64      `json:"mileage" db:"mileage"`
	Status      CarStatus  `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Bookable reports whether new reservations may be placed on the car.
func (c *Car) Bookable() bool {
	return c.DeletedAt == nil && c.Status != CarStatusMaintenance
}

// CarAvailability is the result of checking one car against an interval.
type CarAvailability struct {
	CarID     int64     `json:"car_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}
