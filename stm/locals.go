package stm

import "sync/atomic"

var nextLocalKey atomic.Uint64

func allocLocalKey() uint64 {
	return nextLocalKey.Add(1)
}

// TransactionLocal holds a value scoped to a single transaction attempt.
// Its storage key is allocated once, monotonically, and never reused, so
// two TransactionLocal[T] variables never alias even if one were garbage
// collected and another allocated in its place (original_source/wstm/
// stm.h's WTransactionLocalValue, which keys off a similarly monotonic
// counter rather than the variable's address for the same reason). A
// nested transaction inherits its parent's transaction-local values: Get
// walks up through ancestors until it finds one, mirroring how read/write
// sets are inherited.
type TransactionLocal[T any] struct {
	key     uint64
	initial T
}

// NewTransactionLocal creates a transaction-local variable. Before any
// transaction has Set it, Get returns initial.
func NewTransactionLocal[T any](initial T) *TransactionLocal[T] {
	return &TransactionLocal[T]{key: allocLocalKey(), initial: initial}
}

// Get returns the value most recently Set within tx or one of its
// ancestors, or the initial value if none has been.
func (l *TransactionLocal[T]) Get(tx *Tx) T {
	for t := tx; t != nil; t = t.parent {
		if v, ok := t.locals[l.key]; ok {
			return v.(T)
		}
	}
	return l.initial
}

// Set stores v for the remainder of tx's attempt, and, if tx later commits
// as a nested transaction, for its parent too.
func (l *TransactionLocal[T]) Set(tx *Tx, v T) {
	tx.locals[l.key] = v
}

// TransactionLocalFlag is a convenience TransactionLocal[bool] for the
// common "has this already run in this attempt" check, mirroring
// original_source/wstm/stm.h's WTransactionLocalFlag.
type TransactionLocalFlag struct {
	local *TransactionLocal[bool]
}

// NewTransactionLocalFlag creates a flag that reads false until first Set.
func NewTransactionLocalFlag() *TransactionLocalFlag {
	return &TransactionLocalFlag{local: NewTransactionLocal(false)}
}

// TestAndSet returns the flag's current value within tx, then sets it to
// true. Typical use is to run a side effect at most once per attempt:
//
//	if !flag.TestAndSet(tx) { ... }
func (f *TransactionLocalFlag) TestAndSet(tx *Tx) bool {
	was := f.local.Get(tx)
	f.local.Set(tx, true)
	return was
}

// IsSet reports the flag's current value within tx without modifying it.
func (f *TransactionLocalFlag) IsSet(tx *Tx) bool {
	return f.local.Get(tx)
}
