package profiler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// runFlush periodically logs a summary of the recent conflict history,
// adapted from the teacher's own background-maintenance ticker loop
// (mvcc/gc.go's runGC): a context-cancellable ticker driving a single
// mutex-guarded step, run on its own goroutine and announced as done via a
// closed channel.
//
// Where the teacher's loop prunes an unbounded []*version slice, this one
// has nothing to prune — ConflictHistory is already capacity-bounded by the
// LRU cache backing it — so the step here is reporting, not collection. The
// rate limiter is built from the same interval as the ticker, so it admits
// at most one report per flush interval; it sets no floor of its own below
// a low configured interval.
func (r *Recorder) runFlush(ctx context.Context, interval time.Duration) {
	defer close(r.flushDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flushOnce()
		}
	}
}

func (r *Recorder) flushOnce() {
	if !r.flushLimiter.Allow() {
		return
	}
	recent := r.history.Recent()
	r.logger.Debug("conflict history flush", "count", len(recent), "capacity", r.historyCapacity)
}

func newFlushLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
