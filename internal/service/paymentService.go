package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/database"
	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/pkg/gateway"
)

type settleOutcome int

const (
	settled settleOutcome = iota
	alreadyPaid
	reservationClosed
)

// ConfirmPayment records how the user pays. Manual methods wait for an admin
// to verify; gateway methods open an external charge that settles through
// HandleGatewayNotification. Repeating the call is a no-op.
func (s *bookingService) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest) (*entity.PaymentReceipt, error) {
	if err := validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !req.Method.Valid() {
		return nil, entity.ValidationError(entity.ReasonInvalidMethod, "unsupported payment method %q", req.Method)
	}
	useGateway := req.Method.UsesGateway() && s.gateway != nil

	var receipt *entity.PaymentReceipt
	var pending *entity.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		res, payment, replay, err := s.checkConfirmable(ctx, tx, req, useGateway)
		if err != nil || replay != nil {
			receipt = replay
			return err
		}
		if useGateway {
			pending = res
			return nil
		}

		p, err := s.recordPayment(ctx, tx, res, payment, req.Method, entity.PaymentStatusWaitingVerify, nil)
		if err != nil {
			return err
		}
		receipt = &entity.PaymentReceipt{Payment: p}
		pending = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		if !receipt.Replayed {
			logrus.WithFields(logrus.Fields{
				"reservation_id": req.ReservationID,
				"method":         req.Method,
			}).Info("payment waiting for verification")
			s.emit(ctx, entity.EventPaymentSubmitted, pending, receipt.Payment)
		}
		return receipt, nil
	}

	return s.openCharge(ctx, req, pending)
}

// openCharge creates the external charge outside any transaction, then
// stores it if the reservation is still payable.
func (s *bookingService) openCharge(ctx context.Context, req *ConfirmPaymentRequest, res *entity.Reservation) (*entity.PaymentReceipt, error) {
	amount := res.TotalPrice * s.opts.MinorUnits
	if amount < s.gateway.MinAmount() {
		return nil, entity.ConflictError(entity.ReasonAmountTooLow,
			"amount %d is below the gateway minimum %d", amount, s.gateway.MinAmount())
	}

	ref, err := s.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		ExternalID:  fmt.Sprintf("reservation-%d-%s", res.ID, uuid.NewString()),
		Amount:      amount,
		Currency:    s.gateway.Currency(),
		Method:      string(req.Method),
		Description: fmt.Sprintf("Car rental reservation #%d", res.ID),
	})
	if err != nil {
		var domainErr *entity.Error
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, entity.ExternalGatewayError(entity.ReasonGatewayFailure, err, "failed to create charge for reservation %d", res.ID)
	}
	if ref.ID == "" {
		return nil, entity.ExternalGatewayError(entity.ReasonGatewayMalformed, nil, "gateway returned a charge without id")
	}

	var receipt *entity.PaymentReceipt
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		res, payment, replay, err := s.checkConfirmable(ctx, tx, req, true)
		if err != nil || replay != nil {
			receipt = replay
			return err
		}

		p, err := s.recordPayment(ctx, tx, res, payment, req.Method, entity.PaymentStatusPending, &ref)
		if err != nil {
			return err
		}
		receipt = &entity.PaymentReceipt{Payment: p, ChargeURL: ref.URL}
		return nil
	})
	if err != nil {
		logrus.Warnf("charge %s for reservation %d was created but not stored: %v", ref.ID, res.ID, err)
		return nil, err
	}
	if receipt.Replayed {
		logrus.Warnf("charge %s for reservation %d superseded by a concurrent confirmation", ref.ID, res.ID)
		return receipt, nil
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"charge_id":      ref.ID,
		"amount":         amount,
	}).Info("gateway charge opened")
	return receipt, nil
}

// checkConfirmable loads and locks the reservation and its payment. A non-nil
// receipt means the request repeats an earlier one and nothing must change.
func (s *bookingService) checkConfirmable(ctx context.Context, tx database.Tx, req *ConfirmPaymentRequest, useGateway bool) (*entity.Reservation, *entity.Payment, *entity.PaymentReceipt, error) {
	res, err := s.lockReservation(ctx, tx, req.ReservationID)
	if err != nil {
		return nil, nil, nil, err
	}
	if res.UserID != req.UserID {
		return nil, nil, nil, entity.ForbiddenError(entity.ReasonNotOwner, "reservation %d belongs to another user", res.ID)
	}

	payment, err := tx.LockPayment(ctx, res.ID)
	if err != nil {
		if !errors.Is(err, entity.ErrNotFound) {
			return nil, nil, nil, err
		}
		payment = nil
	}

	if payment != nil {
		switch {
		case payment.Status == entity.PaymentStatusPaid, payment.Status == entity.PaymentStatusWaitingVerify:
			return res, payment, &entity.PaymentReceipt{Payment: payment, Replayed: true}, nil
		case payment.Status == entity.PaymentStatusPending && payment.GatewayChargeID != nil && useGateway:
			receipt := &entity.PaymentReceipt{Payment: payment, Replayed: true}
			if payment.GatewayChargeURL != nil {
				receipt.ChargeURL = *payment.GatewayChargeURL
			}
			return res, payment, receipt, nil
		}
	}

	if !res.Status.IsActive() {
		return nil, nil, nil, entity.StateError(entity.ReasonInvalidStatus,
			"reservation %d is %s and cannot take a payment", res.ID, res.Status)
	}
	if res.LockLapsed(s.clock.Now()) {
		return nil, nil, nil, entity.ConflictError(entity.ReasonExpired,
			"payment window of reservation %d closed at %s", res.ID, res.LockExpiresAt.Format("2006-01-02 15:04:05"))
	}
	return res, payment, nil, nil
}

// recordPayment creates or rewrites the open payment and moves a legacy
// PENDING reservation to WAITING_PAYMENT.
func (s *bookingService) recordPayment(
	ctx context.Context,
	tx database.Tx,
	res *entity.Reservation,
	payment *entity.Payment,
	method entity.PaymentMethod,
	status entity.PaymentStatus,
	charge *gateway.ChargeRef,
) (*entity.Payment, error) {
	now := s.clock.Now()

	p := &entity.Payment{
		ReservationID: res.ID,
		Method:        method,
		Amount:        res.TotalPrice,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if charge != nil {
		p.GatewayChargeID = &charge.ID
		p.GatewayChargeURL = &charge.URL
	}

	if payment == nil {
		if err := tx.CreatePayment(ctx, p); err != nil {
			return nil, err
		}
	} else {
		p.ID = payment.ID
		p.CreatedAt = payment.CreatedAt
		ok, err := tx.UpdateOpenPayment(ctx, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, entity.StateError(entity.ReasonInvalidStatus, "payment %d is already closed", payment.ID)
		}
	}

	if res.Status == entity.ReservationStatusPending {
		ok, err := tx.TransitionReservation(ctx, res.ID,
			[]entity.ReservationStatus{entity.ReservationStatusPending}, entity.ReservationStatusWaitingPayment, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, entity.StateError(entity.ReasonInvalidStatus, "reservation %d changed state during confirmation", res.ID)
		}
		res.Status = entity.ReservationStatusWaitingPayment
	}
	return p, nil
}

// ApprovePayment settles a payment on behalf of an admin.
func (s *bookingService) ApprovePayment(ctx context.Context, reservationID int64) (*entity.Payment, error) {
	var res *entity.Reservation
	var payment *entity.Payment
	var outcome settleOutcome

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		res, err = s.lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		payment, err = tx.LockPayment(ctx, res.ID)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return entity.NotFoundError(entity.ReasonPaymentNotFound, "reservation %d has no payment", res.ID)
			}
			return err
		}

		outcome, err = s.settlePayment(ctx, tx, res, payment)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch outcome {
	case alreadyPaid:
		return payment, nil
	case reservationClosed:
		if res.Status == entity.ReservationStatusExpired {
			return nil, entity.ConflictError(entity.ReasonExpired, "reservation %d expired before approval", res.ID)
		}
		return nil, entity.StateError(entity.ReasonInvalidStatus, "reservation %d is %s and cannot be confirmed", res.ID, res.Status)
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"payment_id":     payment.ID,
	}).Info("payment approved")
	s.emit(ctx, entity.EventReservationConfirmed, res, payment)
	return payment, nil
}

// HandleGatewayNotification applies an asynchronous payment callback. Unknown
// charges, non-success outcomes and redeliveries are absorbed silently.
func (s *bookingService) HandleGatewayNotification(ctx context.Context, n gateway.Notification) error {
	log := logrus.WithFields(logrus.Fields{
		"charge_id":     n.ChargeID,
		"event_type":    n.EventType,
		"charge_status": n.ChargeStatus,
	})

	if !n.Succeeded() {
		log.Debug("ignoring non-success notification")
		return nil
	}

	payment, err := s.store.GetPaymentByCharge(ctx, n.ChargeID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			log.Warn("ignoring notification for unknown charge")
			return nil
		}
		return err
	}
	if payment.Status == entity.PaymentStatusPaid {
		log.Debug("charge already settled")
		return nil
	}

	if s.gateway != nil {
		state, err := s.gateway.RetrieveCharge(ctx, n.ChargeID)
		if err != nil {
			return entity.ExternalGatewayError(entity.ReasonGatewayFailure, err, "failed to verify charge %s", n.ChargeID)
		}
		if state.Status != gateway.ChargePaid {
			log.Warnf("notification claims success but gateway reports %s", state.Status)
			return nil
		}
	}

	var res *entity.Reservation
	var outcome settleOutcome
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		var err error
		res, err = tx.LockReservation(ctx, payment.ReservationID)
		if err != nil {
			return err
		}
		payment, err = tx.LockPayment(ctx, res.ID)
		if err != nil {
			return err
		}
		if payment.GatewayChargeID == nil || *payment.GatewayChargeID != n.ChargeID {
			outcome = alreadyPaid
			log.Warn("charge no longer attached to its payment")
			return nil
		}

		outcome, err = s.settlePayment(ctx, tx, res, payment)
		return err
	})
	if err != nil {
		return err
	}

	switch outcome {
	case alreadyPaid:
		return nil
	case reservationClosed:
		log.WithField("reservation_id", res.ID).
			Errorf("charge paid for reservation in %s; refund required", res.Status)
		return nil
	}

	log.WithField("reservation_id", res.ID).Info("payment settled by gateway")
	s.emit(ctx, entity.EventReservationConfirmed, res, payment)
	return nil
}

// settlePayment is the single transition shared by admin approval and gateway
// callbacks: payment PAID, reservation CONFIRMED, car BOOKED. Each write is
// conditional on the prior state, so a concurrent sweep and settlement cannot
// both win.
func (s *bookingService) settlePayment(ctx context.Context, tx database.Tx, res *entity.Reservation, payment *entity.Payment) (settleOutcome, error) {
	if payment.Status == entity.PaymentStatusPaid {
		return alreadyPaid, nil
	}
	now := s.clock.Now()

	ok, err := tx.TransitionReservation(ctx, res.ID,
		entity.SourcesFor(entity.ReservationStatusConfirmed), entity.ReservationStatusConfirmed, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		return reservationClosed, nil
	}

	ok, err = tx.TransitionPayment(ctx, payment.ID, entity.OpenPaymentStatuses, entity.PaymentStatusPaid, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, entity.StateError(entity.ReasonInvalidStatus, "payment %d is %s and cannot be settled", payment.ID, payment.Status)
	}

	booked, err := tx.UpdateCarStatus(ctx, res.CarID, entity.CarStatusBooked, now)
	if err != nil {
		return 0, err
	}
	if !booked {
		logrus.Warnf("car %d left in maintenance while reservation %d was confirmed", res.CarID, res.ID)
	}

	res.Status = entity.ReservationStatusConfirmed
	res.UpdatedAt = now
	payment.Status = entity.PaymentStatusPaid
	payment.PaidAt = &now
	payment.UpdatedAt = now
	return settled, nil
}
