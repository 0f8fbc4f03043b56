package stm

import (
	"sync"
	"time"
)

// conflictSignal is the panic value thrown by an explicit Validate call (on
// a Tx or a single Cell) to unwind the current attempt immediately, the
// same way Retry does (spec.md §4.2 validate_cell/validate_all). cellID
// names the cell whose snapshot was found stale, for OnConflict.
type conflictSignal struct {
	cellID CellID
}

// runLockedMu is the process-wide writer-exclusion lock backing the
// RunLocked resolution policy (spec.md §4.6). Ordinary commits take it for
// reading, which costs them nothing relative to one another since the real
// conflict detection still happens per-cell; a RunLocked attempt takes it
// for writing, which excludes every other commit in the process for the
// duration of that one final attempt and so cannot itself conflict.
var runLockedMu sync.RWMutex

type attemptSignal int

const (
	signalNone attemptSignal = iota
	signalConflict
	signalRetry
)

// Atomically runs fn as a transaction against a fresh Tx, retrying on
// commit conflicts and on explicit calls to Retry until it commits or its
// configured limits and Resolution policy give up (spec.md §4.1/§4.6). If
// called from inside another Atomically on the same goroutine, fn instead
// runs as a nested transaction against a child of the currently running Tx
// (spec.md §4.2 nested transactions) and none of the options below apply to
// it; they belong to whichever Atomically call is outermost.
func Atomically[T any](fn func(tx *Tx) (T, error), opts ...Option) (T, error) {
	if parent := activeTxs.get(); parent != nil {
		return atomicallyNested(parent, fn)
	}

	cfg := defaultTxConfig()
	for _, o := range opts {
		o(&cfg)
	}

	var zero T
	conflicts := 0
	retries := 0
	start := time.Now()

	for {
		tx := newTopLevelTx(&cfg)
		cfg.notifyStart(tx.id)
		activeTxs.set(tx)

		result, err, signal, conflictCell, retryDeadline := runAttempt(tx, fn, false)
		activeTxs.clear()
		tx.done = true
		releaseHeldReadLocks(tx)

		switch signal {
		case signalRetry:
			if cfg.maxRetries > 0 && retries >= cfg.maxRetries {
				cfg.logger.Warn("stm: giving up after max retries", "tx", tx.id, "retries", retries)
				tx.runOnFail()
				return zero, ErrMaxRetries
			}
			retries++

			w := newWaiter()
			cores := registerRetryWaiters(tx, w)
			if len(cores) == 0 {
				tx.runOnFail()
				return zero, ErrRetryTimeout
			}
			// spec.md §4.5 step 2: re-validate under the new registrations
			// before parking. If a cell already advanced in the window
			// between the original read and registerRetryWaiters above,
			// waiting on it would be a lost wakeup (its publish may already
			// have happened and signalled an empty waiter set) — restart
			// immediately instead of blocking on a notification that will
			// never come.
			if _, stale := checkStale(tx); stale {
				unregisterRetryWaiters(cores, w)
				cfg.logger.Debug("stm: retry read set went stale before parking, restarting", "tx", tx.id)
				tx.runOnFail()
				continue
			}
			deadline := retryDeadline
			if !deadline.hasTimeout() && cfg.maxRetryWait > 0 {
				deadline = DeadlineAfter(cfg.maxRetryWait)
			}
			timedOut := parkForRetry(w, deadline)
			unregisterRetryWaiters(cores, w)
			if timedOut {
				cfg.logger.Warn("stm: retry timed out", "tx", tx.id)
				tx.runOnFail()
				return zero, ErrRetryTimeout
			}
			cfg.logger.Debug("stm: retry woke, restarting", "tx", tx.id)
			tx.runOnFail()
			continue

		case signalConflict:
			conflicts++
			cfg.notifyConflict(tx.id, conflictCell)
			cfg.logger.Debug("stm: commit conflict, restarting", "tx", tx.id, "cell", conflictCell, "conflicts", conflicts)
			if cfg.maxConflicts > 0 && conflicts > cfg.maxConflicts {
				if cfg.resolution == RunLocked {
					cfg.logger.Warn("stm: max conflicts hit, retrying with RunLocked", "tx", tx.id, "conflicts", conflicts)
					tx.runOnFail()
					v, rlErr := runLockedAttempt(&cfg, fn)
					if rlErr != nil {
						return zero, rlErr
					}
					cfg.notifyCommit(tx.id, conflicts+retries, time.Since(start))
					return v, nil
				}
				cfg.logger.Warn("stm: giving up after max conflicts", "tx", tx.id, "conflicts", conflicts)
				tx.runOnFail()
				return zero, ErrMaxConflicts
			}
			tx.runOnFail()
			continue

		default: // signalNone
			if err != nil {
				tx.runOnFail()
				return zero, err
			}
			for _, after := range tx.after {
				after()
			}
			cfg.logger.Debug("stm: committed", "tx", tx.id, "attempts", conflicts+retries+1)
			cfg.notifyCommit(tx.id, conflicts+retries, time.Since(start))
			return result, nil
		}
	}
}

// runAttempt runs one attempt of fn against tx and, if it returns without
// error, immediately tries to commit. Retry and explicit Validate calls
// unwind fn via panic; this is where they are caught and turned back into a
// plain signal for the caller's control loop.
func runAttempt[T any](tx *Tx, fn func(tx *Tx) (T, error), globalLocked bool) (result T, err error, signal attemptSignal, conflictCell CellID, retryDeadline Deadline) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch sig := r.(type) {
		case retrySignal:
			signal = signalRetry
			retryDeadline = sig.deadline
		case conflictSignal:
			signal = signalConflict
			conflictCell = sig.cellID
		default:
			panic(r)
		}
	}()

	result, err = fn(tx)
	if err != nil {
		return result, err, signalNone, 0, Deadline{}
	}

	if !globalLocked {
		runLockedMu.RLock()
	}
	cr := attemptCommit(tx)
	if !globalLocked {
		runLockedMu.RUnlock()
	}
	if !cr.committed {
		return result, nil, signalConflict, cr.conflict, Deadline{}
	}
	return result, nil, signalNone, 0, Deadline{}
}

// runLockedAttempt makes one final attempt at fn while excluding every
// other commit in the process, per the RunLocked resolution policy.
func runLockedAttempt[T any](cfg *txConfig, fn func(tx *Tx) (T, error)) (T, error) {
	runLockedMu.Lock()
	defer runLockedMu.Unlock()

	tx := newTopLevelTx(cfg)
	cfg.notifyStart(tx.id)
	activeTxs.set(tx)
	defer activeTxs.clear()

	result, err, signal, _, _ := runAttempt(tx, fn, true)
	tx.done = true
	releaseHeldReadLocks(tx)
	var zero T
	switch signal {
	case signalRetry:
		tx.runOnFail()
		return zero, ErrMaxRetries
	case signalConflict:
		tx.runOnFail()
		return zero, ErrMaxConflicts
	default:
		if err != nil {
			tx.runOnFail()
			return zero, err
		}
		for _, after := range tx.after {
			after()
		}
		cfg.logger.Debug("stm: committed via RunLocked", "tx", tx.id)
		return result, nil
	}
}

// atomicallyNested runs fn against a child of parent. It never loops: a
// conflict or retry signal thrown from inside it is left to propagate, via
// the child's cleanup deferred below and then Go's normal panic unwinding,
// all the way out to the outermost Atomically's control loop (spec.md §4.2
// "nested transactions restart the outermost attempt").
func atomicallyNested[T any](parent *Tx, fn func(tx *Tx) (T, error)) (T, error) {
	child := beginChild(parent)
	activeTxs.set(child)
	committed := false
	defer func() {
		activeTxs.set(parent)
		if !committed {
			abortChild(child)
		}
		child.done = true
	}()

	result, err := fn(child)
	if err != nil {
		var zero T
		return zero, err
	}
	commitChild(child)
	committed = true
	return result, nil
}
