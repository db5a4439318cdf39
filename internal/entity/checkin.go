package entity

import (
	"time"
)

// Fine constants, in the same currency unit as Reservation.TotalPrice.
const (
	FreeKilometres   = 300
	ExcessKmRate     = 5
	FuelRefillCharge = 1000
)

type CheckinCheckout struct {
	ID            int64      `json:"id" db:"id"`
	ReservationID int64      `json:"reservation_id" db:"reservation_id"`
	CheckInTime   *time.Time `json:"check_in_time,omitempty" db:"check_in_time"`
	CheckOutTime  *time.Time `json:"check_out_time,omitempty" db:"check_out_time"`
	MileageBefore int64      `json:"mileage_before" db:"mileage_before"`
	MileageAfter  *int64     `json:"mileage_after,omitempty" db:"mileage_after"`
	FuelLevel     string     `json:"fuel_level" db:"fuel_level"`
	DamageReport  string     `json:"damage_report" db:"damage_report"`
	DamageCost    int64      `json:"damage_cost" db:"damage_cost"`
	Fine          int64      `json:"fine" db:"fine"`
	BeforePhotos  []string   `json:"before_photos" db:"before_photos"`
	AfterPhotos   []string   `json:"after_photos" db:"after_photos"`
}

type CheckinInput struct {
	MileageBefore *int64   `json:"mileage_before" validate:"omitempty,gte=0"`
	FuelLevel     string   `json:"fuel_level" validate:"max=32"`
	DamageReport  string   `json:"damage_report" validate:"max=2000"`
	Photos        []string `json:"photos" validate:"max=20,dive,max=512"`
}

type CheckoutInput struct {
	MileageAfter int64    `json:"mileage_after" validate:"gte=0"`
	DamageCost   int64    `json:"damage_cost" validate:"gte=0"`
	FuelFull     *bool    `json:"fuel_full"`
	DamageReport string   `json:"damage_report" validate:"max=2000"`
	Photos       []string `json:"photos" validate:"max=20,dive,max=512"`
}

// IsFuelFull applies the default of a full tank when the field was omitted.
func (in CheckoutInput) IsFuelFull() bool {
	return in.FuelFull == nil || *in.FuelFull
}

type FineBreakdown struct {
	UsedKm      int64 `json:"used_km"`
	ExcessKm    int64 `json:"excess_km"`
	ExcessKmFee int64 `json:"excess_km_fee"`
	FuelFee     int64 `json:"fuel_fee"`
	DamageCost  int64 `json:"damage_cost"`
	Fine        int64 `json:"fine"`
	BasePrice   int64 `json:"base_price"`
	FinalTotal  int64 `json:"final_total"`
}

// ComputeFine prices a return:
//
//	fine       = max(0, usedKm-300)*5 + (fuelFull ? 0 : 1000) + damageCost
//	finalTotal = totalPrice + fine
func ComputeFine(totalPrice, mileageBefore, mileageAfter, damageCost int64, fuelFull bool) FineBreakdown {
	b := FineBreakdown{
		UsedKm:     mileageAfter - mileageBefore,
		DamageCost: damageCost,
		BasePrice:  totalPrice,
	}
	if b.UsedKm > FreeKilometres {
		b.ExcessKm = b.UsedKm - FreeKilometres
	}
	b.ExcessKmFee = b.ExcessKm * ExcessKmRate
	if !fuelFull {
		b.FuelFee = FuelRefillCharge
	}
	b.Fine = b.ExcessKmFee + b.FuelFee + b.DamageCost
	b.FinalTotal = totalPrice + b.Fine
	return b
}

type CheckoutResult struct {
	Reservation *Reservation     `json:"reservation"`
	Record      *CheckinCheckout `json:"record"`
	Breakdown   FineBreakdown    `json:"breakdown"`
}
