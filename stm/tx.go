package stm

import (
	"sync/atomic"
	"time"
)

var nextTxID atomic.Uint64

// readEntry is the Snapshot cached in a Tx's read set (spec.md §3).
type readEntry struct {
	core    anyCellCore
	version uint64
	val     any
}

// writeEntry is a pending write in a Tx's write set.
type writeEntry struct {
	core  anyCellCore
	value any
}

// Tx is the Transaction Record: all per-active-transaction state, from the
// read/write sets through the nesting stack to the commit hooks
// (spec.md §3/§4.2). A Tx is not safe for concurrent use by more than one
// goroutine, mirroring the teacher's own Tx and the original WAtomic: a
// transaction belongs to the goroutine that started it.
type Tx struct {
	id     uint64
	parent *Tx
	depth  int
	cfg    *txConfig

	reads  map[CellID]*readEntry
	writes map[CellID]*writeEntry

	// heldReadLocks holds the read locks acquired while readLockDepth > 0,
	// released together on ReadUnlock dropping to zero or at transaction
	// end (spec.md §4.2 ReadLock/ReadUnlock, §4.3).
	readLockDepth int
	heldReadLocks map[CellID]anyCellCore

	locals map[uint64]any

	beforeCommit []func(*Tx)
	after        []func()
	onFail       []func()

	startTime time.Time

	// done is set once the attempt has ended (committed or aborted); after
	// that, checkDone rejects any further use of the Tx.
	done bool
}

func newTopLevelTx(cfg *txConfig) *Tx {
	return &Tx{
		id:            nextTxID.Add(1),
		cfg:           cfg,
		reads:         make(map[CellID]*readEntry),
		writes:        make(map[CellID]*writeEntry),
		heldReadLocks: make(map[CellID]anyCellCore),
		locals:        make(map[uint64]any),
		startTime:     time.Now(),
	}
}

// beginChild starts a nested transaction. The child logically inherits the
// parent's read/write sets by reference: a lookup checks the child's own
// maps first, falling back to the parent's (spec.md §4.2 "begin_child").
func beginChild(parent *Tx) *Tx {
	return &Tx{
		id:            nextTxID.Add(1),
		parent:        parent,
		depth:         parent.depth + 1,
		cfg:           parent.cfg,
		reads:         make(map[CellID]*readEntry),
		writes:        make(map[CellID]*writeEntry),
		heldReadLocks: make(map[CellID]anyCellCore),
		locals:        make(map[uint64]any),
		startTime:     parent.startTime,
	}
}

// commitChild merges a successfully completed child's reads/writes/hooks
// into its parent (spec.md §4.2 "commit_child", §3 "nested merge").
func commitChild(child *Tx) {
	parent := child.parent
	for id, e := range child.reads {
		if _, ok := parent.reads[id]; !ok {
			parent.reads[id] = e
		}
	}
	for id, e := range child.writes {
		parent.writes[id] = e
	}
	for k, v := range child.locals {
		parent.locals[k] = v
	}
	parent.beforeCommit = append(parent.beforeCommit, child.beforeCommit...)
	parent.after = append(parent.after, child.after...)
	parent.onFail = append(parent.onFail, child.onFail...)
	releaseHeldReadLocks(child)
}

// abortChild discards a child transaction entirely: none of its reads,
// writes, or hooks affect the parent (spec.md §3 "on abort they vanish").
func abortChild(child *Tx) {
	releaseHeldReadLocks(child)
}

func releaseHeldReadLocks(tx *Tx) {
	for _, core := range tx.heldReadLocks {
		core.lock().RUnlock()
	}
	tx.heldReadLocks = nil
	tx.readLockDepth = 0
}

// lookupRead walks from tx up through its ancestors looking for a cached
// read of core, returning (entry, true) from the nearest transaction that
// has one.
func lookupRead(tx *Tx, id CellID) (*readEntry, bool) {
	for t := tx; t != nil; t = t.parent {
		if e, ok := t.reads[id]; ok {
			return e, true
		}
	}
	return nil, false
}

// lookupWrite walks from tx up through its ancestors looking for a pending
// write to core, returning (entry, true) from the nearest transaction that
// has one.
func lookupWrite(tx *Tx, id CellID) (*writeEntry, bool) {
	for t := tx; t != nil; t = t.parent {
		if e, ok := t.writes[id]; ok {
			return e, true
		}
	}
	return nil, false
}

// get implements Cell.Get (spec.md §4.2): pending write first (read-your-
// own-writes), then a cached snapshot, then a fresh locked read.
func (tx *Tx) get(core anyCellCore) any {
	tx.checkDone()
	if w, ok := lookupWrite(tx, core.id()); ok {
		return w.value
	}
	if r, ok := lookupRead(tx, core.id()); ok {
		return r.value()
	}
	return tx.readFresh(core)
}

// value returns the value captured when the entry was read, stored inline
// on readEntry alongside its version.
func (e *readEntry) value() any {
	return e.val
}

func (tx *Tx) readFresh(core anyCellCore) any {
	id := core.id()
	if held, ok := tx.heldReadLocks[id]; ok && held != nil {
		v := core.valueLocked()
		ver := core.versionLocked()
		tx.reads[id] = &readEntry{core: core, version: ver, val: v}
		return v
	}
	core.lock().RLock()
	v := core.valueLocked()
	ver := core.versionLocked()
	if tx.readLockDepth > 0 {
		tx.heldReadLocks[id] = core
	} else {
		core.lock().RUnlock()
	}
	tx.reads[id] = &readEntry{core: core, version: ver, val: v}
	return v
}

// set implements Cell.Set (spec.md §4.2): mutate the pending value in place
// if tx's own write set already has one, otherwise insert a new write-set
// entry. The cell's current version is not read here; commit bumps it when
// the value is published. Values are copied on set, never
// moved, since a restart re-invokes the closure (spec.md §9 "No move of
// user values into cells").
func (tx *Tx) set(core anyCellCore, v any) {
	tx.checkDone()
	id := core.id()
	if w, ok := tx.writes[id]; ok {
		w.value = v
		return
	}
	tx.writes[id] = &writeEntry{core: core, value: v}
}

// validateCore implements Cell.Validate / spec.md §4.2 validate_cell: if tx
// has read this cell and its version has since advanced, abort immediately.
func (tx *Tx) validateCore(core anyCellCore) {
	tx.checkDone()
	e, ok := lookupRead(tx, core.id())
	if !ok {
		return
	}
	core.lock().RLock()
	valid := core.versionLocked() == e.version
	core.lock().RUnlock()
	if !valid {
		panic(conflictSignal{cellID: core.id()})
	}
}

// Validate implements spec.md §4.2 validate_all: check every entry in the
// (merged, since a nested Tx inherits its ancestors') read set, aborting
// the transaction immediately if any is stale. It is not required to call
// this — it happens automatically when Atomically's closure returns — but
// long-running operations can call it periodically to fail fast.
func (tx *Tx) Validate() {
	tx.checkDone()
	if id, stale := checkStale(tx); stale {
		panic(conflictSignal{cellID: id})
	}
}

// checkStale is the non-panicking core of Validate: it reports the first
// stale cell found in tx's (merged) read set, if any, without aborting
// anything itself. Used both by Validate and by the retry path in
// Atomically (control.go), which must re-check the read set after registering wake
// waiters and restart immediately rather than unwind through a panic if
// a cell already advanced in the window between the read and the
// registration (spec.md §4.5 step 2).
func checkStale(tx *Tx) (CellID, bool) {
	seen := make(map[CellID]struct{})
	for t := tx; t != nil; t = t.parent {
		for id, e := range t.reads {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			core := e.core
			core.lock().RLock()
			valid := core.versionLocked() == e.version
			core.lock().RUnlock()
			if !valid {
				return id, true
			}
		}
	}
	return 0, false
}

// ReadLock causes the transaction to acquire and hold read locks on every
// cell it subsequently reads, until ReadUnlock has been called the same
// number of times or the transaction ends (spec.md §4.2/§4.3).
func (tx *Tx) ReadLock() {
	tx.checkDone()
	tx.readLockDepth++
}

// IsReadLocked reports whether the transaction is currently holding a
// transaction-wide read lock span.
func (tx *Tx) IsReadLocked() bool {
	return tx.readLockDepth > 0
}

// ReadUnlock releases one level of the read-lock span started by ReadLock.
// When the depth returns to zero, every cell lock acquired during the span
// is released.
func (tx *Tx) ReadUnlock() {
	tx.checkDone()
	if tx.readLockDepth == 0 {
		return
	}
	tx.readLockDepth--
	if tx.readLockDepth == 0 {
		releaseHeldReadLocks(tx)
		tx.heldReadLocks = make(map[CellID]anyCellCore)
	}
}

// BeforeCommit registers a function to run just before the top-level
// transaction starts to commit. On a nested Tx the hook is accumulated in
// the child and spliced onto the parent when the child commits; it is
// discarded if the child aborts (spec.md §4.2).
func (tx *Tx) BeforeCommit(fn func(*Tx)) {
	tx.checkDone()
	tx.beforeCommit = append(tx.beforeCommit, fn)
}

// After registers a function to run after the top-level transaction commits
// successfully. Same accumulation/splice/discard rules as BeforeCommit.
func (tx *Tx) After(fn func()) {
	tx.checkDone()
	tx.after = append(tx.after, fn)
}

// OnFail registers a function to run if this transaction fails to commit
// (conflict, retry, or any other error). Same accumulation/splice/discard
// rules as BeforeCommit; on_fail hooks only actually run from the top-level
// transaction's failed attempt (spec.md §4.2/§7).
func (tx *Tx) OnFail(fn func()) {
	tx.checkDone()
	tx.onFail = append(tx.onFail, fn)
}

func (tx *Tx) runOnFail() {
	for _, fn := range tx.onFail {
		fn()
	}
}

// checkDone panics if tx's attempt has already ended (committed or
// aborted). Every Tx method that touches reads/writes/hooks/locals calls
// this first: a *Tx captured outside the Atomically closure it belongs to
// and used afterward is a programming error, not an expected runtime
// condition, so this panics rather than returning an error the way
// Get/Set's T-only signatures couldn't plumb through anyway.
func (tx *Tx) checkDone() {
	if tx.done {
		panic(ErrTxDone)
	}
}
