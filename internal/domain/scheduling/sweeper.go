package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/lock"
)

const sweepLeaseName = "noshow-sweep"

// Sweeper runs one no-show sweep for the current clinic date.
type Sweeper interface {
	SweepToday(ctx context.Context) (*SweepResult, error)
}

// NoShowSweeper runs the no-show sweep at startup and then on every tick.
// With a Locker configured only the replica holding the lease sweeps. A
// successful sweep keeps the lease until it expires, so replicas with offset
// tickers do not sweep again within the same interval.
type NoShowSweeper struct {
	sweeper  Sweeper
	locker   lock.Locker
	logger   zerolog.Logger
	interval time.Duration
}

func NewNoShowSweeper(sweeper Sweeper, logger zerolog.Logger) *NoShowSweeper {
	return &NoShowSweeper{
		sweeper:  sweeper,
		logger:   logger.With().Str("worker", "noshow-sweep").Logger(),
		interval: time.Hour,
	}
}

func (w *NoShowSweeper) WithInterval(d time.Duration) *NoShowSweeper {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *NoShowSweeper) WithLocker(l lock.Locker) *NoShowSweeper {
	w.locker = l
	return w
}

// Run blocks until ctx is cancelled.
func (w *NoShowSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// leaseTTL is a little shorter than the interval so the holder's own next
// tick finds the lease expired.
func (w *NoShowSweeper) leaseTTL() time.Duration {
	return w.interval - w.interval/10
}

// RunOnce performs a single sweep. Failures are logged and release the
// lease so any replica can retry on its next tick.
func (w *NoShowSweeper) RunOnce(ctx context.Context) {
	ctx = w.logger.WithContext(ctx)
	var lease *lock.Lease
	if w.locker != nil {
		var err error
		lease, err = w.locker.Acquire(ctx, sweepLeaseName, w.leaseTTL())
		if err != nil {
			w.logger.Error().Err(err).Msg("acquire sweep lease")
			return
		}
		if lease == nil {
			w.logger.Debug().Msg("sweep lease held elsewhere, skipping")
			return
		}
	}

	res, err := w.sweeper.SweepToday(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("no-show sweep failed")
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn().Err(err).Msg("release sweep lease")
		}
		return
	}
	w.logger.Debug().Int64("marked", res.Marked).Str("as_of", res.AsOf.String()).Msg("no-show sweep finished")
}
