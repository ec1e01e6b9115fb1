package sessioncore

import (
	"context"
	"time"
)

// startSweeper launches the background goroutine that prunes expired
// refresh-token rows on the configured interval. Stopped by Close.
func (e *Engine) startSweeper(interval time.Duration) {
	e.sweepDone = make(chan struct{})
	e.sweepWg.Add(1)

	go func() {
		defer e.sweepWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.sweepDone:
				return
			case <-ticker.C:
				_, _ = e.SweepExpiredTokens(context.Background())
			}
		}
	}()
}

// SweepExpiredTokens deletes refresh-token rows past expiry and reconciles
// the per-user indexes. The background sweeper calls this on a timer; it is
// also safe to trigger manually.
func (e *Engine) SweepExpiredTokens(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	deleted, err := e.store.DeleteExpiredRefreshTokens(sctx)
	if err != nil {
		return deleted, e.mapStoreErr(err)
	}

	if deleted > 0 {
		e.metrics.Add(MetricSweepDeleted, uint64(deleted))
	}
	return deleted, nil
}
