package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

// ExpiryService is the part of the booking core the sweeper drives.
type ExpiryService interface {
	ListLapsed(ctx context.Context, after entity.LapsedCursor, limit int) ([]entity.Reservation, error)
	ExpireReservation(ctx context.Context, reservationID int64) (bool, error)
}

// SweepReport summarises one pass over lapsed reservations.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ExpirySweeper expires reservations whose payment lock ran out.
type ExpirySweeper struct {
	service   ExpiryService
	clock     clockwork.Clock
	interval  time.Duration
	batchSize int

	sweepMu  sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewExpirySweeper(service ExpiryService, clock clockwork.Clock, interval time.Duration, batchSize int) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirySweeper{
		service:   service,
		clock:     clock,
		interval:  interval,
		batchSize: batchSize,
		stop:      make(chan struct{}),
	}
}

// Start sweeps every interval in the background until ctx is cancelled or
// Stop is called. Cancelling ctx stops new ticks only; a tick in flight runs
// to the end of its pass.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *ExpirySweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Infof("Expiry sweeper started, interval %v", w.interval)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Expiry sweeper stopped")
			return
		case <-w.stop:
			logrus.Info("Expiry sweeper stopped")
			return
		case <-ticker.Chan():
			if _, err := w.SweepExpired(context.WithoutCancel(ctx)); err != nil {
				logrus.Errorf("expiry sweep failed: %v", err)
			}
		}
	}
}

// Stop prevents new ticks and waits for the sweep in flight.
func (w *ExpirySweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

// SweepExpired expires every lapsed reservation, reading them batchSize at a
// time. Each reservation is handled in its own transaction; a failure is
// logged and counted and the sweep moves past it.
func (w *ExpirySweeper) SweepExpired(ctx context.Context) (SweepReport, error) {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()

	var (
		report SweepReport
		after  entity.LapsedCursor
	)

	for {
		if ctx.Err() != nil {
			logrus.Warn("expiry sweep interrupted")
			break
		}

		lapsed, err := w.service.ListLapsed(ctx, after, w.batchSize)
		if err != nil {
			return report, fmt.Errorf("failed to list lapsed reservations: %w", err)
		}
		report.Scanned += len(lapsed)

		for i := range lapsed {
			w.expire(ctx, lapsed[i].ID, &report)
		}

		if len(lapsed) < w.batchSize {
			break
		}
		after = entity.CursorOf(&lapsed[len(lapsed)-1])
	}

	if report.Scanned > 0 {
		logrus.WithFields(logrus.Fields{
			"scanned": report.Scanned,
			"expired": report.Expired,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		}).Info("expiry sweep completed")
	}
	return report, nil
}

func (w *ExpirySweeper) expire(ctx context.Context, id int64, report *SweepReport) {
	expired, err := w.service.ExpireReservation(ctx, id)
	switch {
	case err != nil:
		logrus.Errorf("failed to expire reservation %d: %v", id, err)
		report.Failed++
	case expired:
		report.Expired++
	default:
		logrus.Debugf("reservation %d changed before it could expire", id)
		report.Skipped++
	}
}
