package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ocr-batch-sync/internal/domain"
	"ocr-batch-sync/internal/infra/redis"
	"ocr-batch-sync/internal/infra/worker"
	"ocr-batch-sync/internal/usecase"
)

const refreshLockKey = "lock:job_refresh"

// RefreshWorker periodically re-queries every non-terminal job so the
// local store converges on the remote state even when no operator is
// issuing commands. A distributed lock keeps concurrent instances from
// hammering the service with duplicate refresh sweeps.
type RefreshWorker struct {
	uc       usecase.JobSyncUseCase
	locker   redis.Locker
	pool     *worker.Pool
	interval time.Duration
	log      *zerolog.Logger
}

func NewRefreshWorker(uc usecase.JobSyncUseCase, locker redis.Locker, interval time.Duration, log *zerolog.Logger) *RefreshWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &RefreshWorker{
		uc:       uc,
		locker:   locker,
		pool:     worker.NewPool(1, log),
		interval: interval,
		log:      log,
	}
}

func (w *RefreshWorker) Start(ctx context.Context) {
	w.pool.Start(ctx)
	defer w.pool.Stop()

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// Sweeps slower than the interval must not pile up; the
			// single-worker pool bounds the backlog and drops ticks
			// beyond it.
			if err := w.pool.Submit(func(ctx context.Context) error {
				w.tick(ctx)
				return nil
			}); err != nil {
				w.log.Debug().Msg("refresh backlog full, skipping tick")
			}
		}
	}
}

func (w *RefreshWorker) tick(ctx context.Context) {
	var token string
	if w.locker != nil {
		var err error
		// Lock TTL slightly above the interval so a crashed holder
		// releases within one sweep.
		token, err = w.locker.TryLock(ctx, refreshLockKey, w.interval+5*time.Second)
		if errors.Is(err, domain.ErrLockHeld) {
			w.log.Debug().Msg("refresh sweep already running elsewhere")
			return
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("refresh lock unavailable, sweeping anyway")
		}
	}
	defer func() {
		if w.locker != nil && token != "" {
			if err := w.locker.Unlock(ctx, refreshLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("could not release refresh lock")
			}
		}
	}()

	start := time.Now()
	jobs, err := w.uc.RefreshAll(ctx, nil)
	if err != nil {
		w.log.Error().Err(err).Msg("refresh sweep failed")
		return
	}
	w.log.Debug().
		Int("jobs", len(jobs)).
		Dur("took", time.Since(start)).
		Msg("refresh sweep finished")
}
