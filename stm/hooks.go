package stm

import "time"

// Hooks receives lifecycle notifications from the transaction engine. All
// methods must return quickly and must never call back into Atomically,
// Inconsistently, or any Cell method on the goroutine that invoked them —
// they run while the engine itself may still be holding cell locks.
//
// A nil Hooks (the default) disables observation entirely; Atomically checks
// for nil before every call so there is no cost when no one is listening.
type Hooks interface {
	// OnTransactionStart fires once per attempt, including retried and
	// re-conflicted attempts, before the closure runs.
	OnTransactionStart(txID uint64)
	// OnCommit fires after a transaction's changes have been published,
	// with the number of prior failed attempts (conflicts + retries) it
	// took to get there.
	OnCommit(txID uint64, attempts int, dur time.Duration)
	// OnConflict fires every time a commit attempt is rejected because its
	// read set no longer matches committed state.
	OnConflict(txID uint64, cellID CellID)
	// OnThreadNamed lets a caller attach a human-readable name to the
	// calling goroutine, surfaced in profiling output.
	OnThreadNamed(goroutineID int64, name string)
	// OnTransactionNamed lets a caller attach a human-readable name to a
	// transaction, surfaced in profiling output.
	OnTransactionNamed(txID uint64, name string)
	// OnCellNamed lets a caller attach a human-readable name to a cell,
	// surfaced in profiling output.
	OnCellNamed(cellID CellID, name string)
}

func (c *txConfig) notifyStart(txID uint64) {
	if c.hooks != nil {
		c.hooks.OnTransactionStart(txID)
	}
}

func (c *txConfig) notifyCommit(txID uint64, attempts int, dur time.Duration) {
	if c.hooks != nil {
		c.hooks.OnCommit(txID, attempts, dur)
	}
}

func (c *txConfig) notifyConflict(txID uint64, cellID CellID) {
	if c.hooks != nil {
		c.hooks.OnConflict(txID, cellID)
	}
}

// NameThread attaches name to the calling goroutine, surfaced in profiling
// output, if tx was started with hooks attached. It is a no-op otherwise.
func NameThread(tx *Tx, name string) {
	if tx.cfg != nil && tx.cfg.hooks != nil {
		tx.cfg.hooks.OnThreadNamed(goroutineID(), name)
	}
}

// NameTransaction attaches name to tx, surfaced in profiling output.
func NameTransaction(tx *Tx, name string) {
	if tx.cfg != nil && tx.cfg.hooks != nil {
		tx.cfg.hooks.OnTransactionNamed(tx.id, name)
	}
}

// NameCell attaches name to c, surfaced in profiling output.
func NameCell[T any](tx *Tx, c *Cell[T], name string) {
	if tx.cfg != nil && tx.cfg.hooks != nil {
		tx.cfg.hooks.OnCellNamed(c.core.id(), name)
	}
}
