// Package stm implements software transactional memory: transactional
// variables (Cell[T]) read and written inside a closure passed to
// Atomically, committed atomically and in isolation from every other
// concurrent transaction, with automatic retry on conflict.
//
// A typical transfer between two cells looks like:
//
//	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
//		if from.Get(tx) < amount {
//			return struct{}{}, errInsufficientFunds
//		}
//		from.Set(tx, from.Get(tx)-amount)
//		to.Set(tx, to.Get(tx)+amount)
//		return struct{}{}, nil
//	})
//
// Call Retry from inside a transaction to block until some cell it has
// read changes, instead of returning. Transactions may be nested: a call
// to Atomically from inside another transaction's closure runs against a
// child of the enclosing transaction and commits into it rather than
// against shared state directly.
package stm
