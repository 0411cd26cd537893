package daemon

import (
	"context"
	"time"

	"ingest/internal/logging"
	"ingest/internal/records"
)

func (d *Daemon) reaperTiming() (interval, staleAfter time.Duration, ok bool) {
	if d.cfg.Queue.StaleAfterSeconds <= 0 {
		return 0, 0, false
	}
	staleAfter = time.Duration(d.cfg.Queue.StaleAfterSeconds) * time.Second
	interval = time.Duration(d.cfg.Queue.ReaperIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = staleAfter / 2
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval, staleAfter, true
}

func (d *Daemon) reapLoop(ctx context.Context, interval, staleAfter time.Duration) {
	defer d.wg.Done()
	logger := logging.NewComponentLogger(d.logger, "reaper")
	logger.Info("stale claim reaper started",
		logging.Duration("interval", interval),
		logging.Duration("stale_after", staleAfter),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.reap(ctx, staleAfter); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(logger, "stale claim sweep failed", "reaper_error",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check record store connectivity"),
				)
			}
		}
	}
}

// ReapOnce returns QUEUED and PROCESSING records whose last modification is
// older than the configured stale window to READY. It is a no-op when the
// reaper is disabled.
func (d *Daemon) ReapOnce(ctx context.Context) ([]int64, error) {
	_, staleAfter, ok := d.reaperTiming()
	if !ok {
		return nil, nil
	}
	return d.reap(ctx, staleAfter)
}

func (d *Daemon) reap(ctx context.Context, staleAfter time.Duration) ([]int64, error) {
	ids, err := d.store.ResetStale(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return nil, err
	}
	d.metrics.ObserveReclaimed(len(ids))
	for _, id := range ids {
		d.logger.Warn("stale claim returned to queue",
			logging.Int64(logging.FieldRecordID, id),
			logging.String(logging.FieldStatus, string(records.StatusReady)),
			logging.String(logging.FieldEventType, "claim_reclaimed"),
		)
	}
	return ids, nil
}
