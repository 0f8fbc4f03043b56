package stm

import (
	"runtime"
	"sync"
)

// goroutineID extracts the calling goroutine's numeric ID by parsing the
// first line of its own stack trace ("goroutine 123 [running]:"). This is
// the portable, safe path used by race detectors that need a per-goroutine
// key without cooperation from the scheduler; unlike an assembly read of
// runtime.g's goid field at a hardcoded offset, it survives Go version
// changes at the cost of being slow. Atomically/Inconsistently only call
// this at transaction entry and exit, never per-cell, so the cost is
// amortized over the whole transaction.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGoroutineID(buf[:n])
}

// parseGoroutineID parses the numeric ID out of "goroutine 123 [running]:...".
func parseGoroutineID(b []byte) int64 {
	const prefix = "goroutine "
	if len(b) < len(prefix) || string(b[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for _, c := range b[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

// txRegistry tracks the innermost active transaction for each goroutine, so
// that InAtomic and nested Atomically calls can find the "current
// transaction" without it being threaded explicitly through every call
// frame.
type txRegistry struct {
	mu      sync.Mutex
	current map[int64]*Tx
}

var activeTxs = &txRegistry{current: make(map[int64]*Tx)}

func (r *txRegistry) get() *Tx {
	gid := goroutineID()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current[gid]
}

func (r *txRegistry) set(tx *Tx) {
	gid := goroutineID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[gid] = tx
}

func (r *txRegistry) clear() {
	gid := goroutineID()
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.current, gid)
}

// InAtomic returns true if the calling goroutine is currently running inside
// an Atomically closure (at any nesting depth).
func InAtomic() bool {
	return activeTxs.get() != nil
}

// NoAtomic returns ErrInAtomic if called from inside a running transaction.
// APIs that must never be called from within Atomically should call this
// first, mirroring original_source/wstm/stm.h's WNoAtomic/NO_ATOMIC guard.
func NoAtomic() error {
	if InAtomic() {
		return ErrInAtomic
	}
	return nil
}
