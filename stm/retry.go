package stm

import (
	"sync"
	"time"
)

// waiter is a one-shot wakeup signal registered with every cell a retrying
// transaction read (spec.md §4.5). The first cell to publish a new value
// wakes every waiter registered on it; signal is idempotent, since one
// waiter is typically registered on several cells at once but should only
// wake the parked goroutine a single time.
type waiter struct {
	once sync.Once
	ch   chan struct{}
}

func newWaiter() *waiter {
	return &waiter{ch: make(chan struct{})}
}

func (w *waiter) signal() {
	w.once.Do(func() { close(w.ch) })
}

// retrySignal is the panic value Retry throws to unwind an arbitrarily deep
// user closure back to the nearest enclosing top-level Atomically, the same
// way a nested Go panic passes through intermediate call frames untouched
// (spec.md §4.5, §9 "Retry escapes nested calls").
type retrySignal struct {
	deadline Deadline
}

// Retry aborts the current attempt and, once the transaction has been
// unwound, parks the calling goroutine until at least one cell it read
// changes, then restarts the transaction from the top. Retry never returns:
// it always panics, so code after a call to Retry is unreachable.
//
// An optional deadline bounds this particular wait, taking precedence over
// any WithMaxRetryWait configured on the enclosing Atomically call — this
// mirrors the per-call timeout original_source/wstm/stm.h's WTimeArg gives
// to an individual retry, layered on top of Atomically's blanket option.
func Retry(tx *Tx, deadline ...Deadline) {
	var d Deadline
	if len(deadline) > 0 {
		d = deadline[0]
	}
	panic(retrySignal{deadline: d})
}

// registerRetryWaiters subscribes w to every cell tx and its ancestors have
// read, returning the cells it registered on so the caller can unregister
// them again once woken or timed out. Atomically calls it with the top-level
// Tx after the attempt has unwound; by then a nested transaction that called
// Retry has been discarded, so cells read only inside that nested
// transaction are not registered.
func registerRetryWaiters(tx *Tx, w *waiter) []anyCellCore {
	seen := make(map[CellID]anyCellCore)
	for t := tx; t != nil; t = t.parent {
		for id, e := range t.reads {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = e.core
		}
	}
	cores := make([]anyCellCore, 0, len(seen))
	for _, core := range seen {
		core.registerWaiter(w)
		cores = append(cores, core)
	}
	if tx.cfg != nil && tx.cfg.logger != nil {
		tx.cfg.logger.Debug("stm: retry parking on read set", "tx", tx.id, "cells", len(cores))
	}
	return cores
}

func unregisterRetryWaiters(cores []anyCellCore, w *waiter) {
	for _, core := range cores {
		core.unregisterWaiter(w)
	}
}

// parkForRetry blocks until w is signaled or deadline elapses, returning
// true if it timed out. A Deadline with no timeout set blocks indefinitely.
func parkForRetry(w *waiter, deadline Deadline) bool {
	if !deadline.hasTimeout() {
		<-w.ch
		return false
	}
	remaining := deadline.remaining()
	if remaining <= 0 {
		return true
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-w.ch:
		return false
	case <-timer.C:
		return true
	}
}
