package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/pkg/gateway"
)

var validate = validator.New()

// BookingService drives reservations through their lifecycle.
type BookingService interface {
	CreateReservation(ctx context.Context, req *CreateReservationRequest) (*entity.Reservation, error)
	ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest) (*entity.PaymentReceipt, error)
	ApprovePayment(ctx context.Context, reservationID int64) (*entity.Payment, error)
	HandleGatewayNotification(ctx context.Context, n gateway.Notification) error
	CancelReservation(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.Reservation, error)

	// Expiry
	ListLapsed(ctx context.Context, after entity.LapsedCursor, limit int) ([]entity.Reservation, error)
	ExpireReservation(ctx context.Context, reservationID int64) (bool, error)

	// Queries
	GetReservation(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.Reservation, error)
	GetReservationStatus(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.ReservationStatusView, error)
	ListUserReservations(ctx context.Context, userID int64) ([]entity.Reservation, error)
	GetPayment(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.Payment, error)
}

// AvailabilityService answers interval questions against the fleet.
type AvailabilityService interface {
	Conflict(ctx context.Context, carID int64, start, end time.Time) (bool, error)
	CheckCar(ctx context.Context, carID int64, start, end time.Time) (*entity.CarAvailability, error)
	AvailableCars(ctx context.Context, start, end time.Time) ([]entity.Car, error)
}

// CheckinService records pickups and returns.
type CheckinService interface {
	Checkin(ctx context.Context, reservationID int64, in *entity.CheckinInput) (*entity.CheckinCheckout, error)
	Checkout(ctx context.Context, reservationID int64, in *entity.CheckoutInput) (*entity.CheckoutResult, error)
	TodayOperations(ctx context.Context) (*entity.DayOperations, error)
	CheckinSummary(ctx context.Context, days int) ([]entity.CheckinSummaryDay, error)
}

// PaymentGateway creates and verifies external charges.
type PaymentGateway interface {
	MinAmount() int64
	Currency() string
	CreateCharge(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeRef, error)
	RetrieveCharge(ctx context.Context, chargeID string) (gateway.ChargeState, error)
}

// EventPublisher delivers lifecycle events after the transition committed.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.ReservationEvent) error
}

type CreateReservationRequest struct {
	UserID          int64     `json:"-" validate:"required,gt=0"`
	CarID           int64     `json:"car_id" binding:"required" validate:"required,gt=0"`
	StartDate       time.Time `json:"start_date" binding:"required" validate:"required"`
	EndDate         time.Time `json:"end_date" binding:"required" validate:"required"`
	PickupLocation  string    `json:"pickup_location" validate:"max=255"`
	DropoffLocation string    `json:"dropoff_location" validate:"max=255"`
}

type ConfirmPaymentRequest struct {
	ReservationID int64                `json:"-" validate:"required,gt=0"`
	UserID        int64                `json:"-" validate:"required,gt=0"`
	Method        entity.PaymentMethod `json:"method" binding:"required"`
}

// BookingOptions are the tunables of the booking service.
type BookingOptions struct {
	LockTTL time.Duration
	// MinorUnits converts a price into the gateway's minor units.
	MinorUnits int64
}

func DefaultBookingOptions() BookingOptions {
	return BookingOptions{
		LockTTL:    entity.DefaultLockTTL,
		MinorUnits: 100,
	}
}

type CheckinOptions struct {
	Location           *time.Location
	RestrictToStartDay bool
}

func validationError(err error) error {
	return entity.ValidationError(entity.ReasonInvalidInput, "%v", err)
}
