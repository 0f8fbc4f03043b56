package stm

import "errors"

// Sentinel errors for typed handling on the caller side, mirroring the
// error taxonomy of spec §7.
var (
	// ErrConflict names the condition where a committing transaction's read
	// set no longer matches the committed state of one or more cells.
	// Atomically handles that condition by restarting the attempt, so no
	// function in this package returns ErrConflict.
	ErrConflict = errors.New("stm: conflict")

	// ErrValidationFailed names the condition where an explicit Validate
	// call (on a Tx or a single Cell) finds that a cell's value has changed
	// since it was read. Validate handles that condition by restarting the
	// attempt the same way a commit conflict does, so no function in this
	// package returns ErrValidationFailed.
	ErrValidationFailed = errors.New("stm: validation failed")

	// ErrMaxConflicts is returned by Atomically when the configured
	// MaxConflicts limit is reached under the Throw resolution policy.
	ErrMaxConflicts = errors.New("stm: hit maximum number of conflicts")

	// ErrMaxRetries is returned by Atomically when the configured
	// MaxRetries limit is reached.
	ErrMaxRetries = errors.New("stm: hit maximum number of retries")

	// ErrRetryTimeout is returned when a call to Retry waits longer than
	// its deadline without any read cell changing.
	ErrRetryTimeout = errors.New("stm: retry timed out")

	// ErrInAtomic is returned by APIs guarded with NoAtomic when called from
	// inside a running transaction.
	ErrInAtomic = errors.New("stm: operation not allowed inside a transaction")

	// ErrTxDone is the panic value raised when a Tx method is called on a
	// transaction whose attempt has already committed or aborted. It panics
	// rather than returning an error because Get/Set and the rest of the Tx
	// API have no error return to carry it through; recover and compare with
	// errors.Is if you need to distinguish it from other panics.
	ErrTxDone = errors.New("stm: transaction already completed")
)
