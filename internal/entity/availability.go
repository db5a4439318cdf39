package entity

import "time"

// IsBlocking reports whether r occupies its car at asOf.
// CONFIRMED and WAITING_PAYMENT always block; PENDING blocks only while its
// lock is live. Soft-deleted rows never block.
func IsBlocking(r *Reservation, asOf time.Time) bool {
	if r.DeletedAt != nil {
		return false
	}
	switch r.Status {
	case ReservationStatusConfirmed, ReservationStatusWaitingPayment:
		return true
	case ReservationStatusPending:
		return r.LockExpiresAt == nil || r.LockExpiresAt.After(asOf)
	default:
		return false
	}
}

// Overlaps reports whether half-open intervals [aStart, aEnd) and
// [bStart, bEnd) share a point. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FirstConflict returns the first reservation in existing that blocks
// [start, end) at asOf, or nil.
func FirstConflict(existing []Reservation, start, end, asOf time.Time) *Reservation {
	for i := range existing {
		r := &existing[i]
		if IsBlocking(r, asOf) && Overlaps(r.StartDate, r.EndDate, start, end) {
			return r
		}
	}
	return nil
}

func Conflicts(existing []Reservation, start, end, asOf time.Time) bool {
	return FirstConflict(existing, start, end, asOf) != nil
}
