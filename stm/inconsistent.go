package stm

// Inconsistent is the token threaded through an Inconsistently closure,
// mirroring Tx for Atomically. It carries no read set, no write set, and no
// retry/conflict machinery: each read takes the cell's read lock just long
// enough to copy out the current value (spec.md §4.7).
type Inconsistent struct{}

func (i *Inconsistent) get(core anyCellCore) any {
	core.lock().RLock()
	v := core.valueLocked()
	core.lock().RUnlock()
	return v
}

// Inconsistently runs fn with a pass that reads cells directly, without
// transactional isolation: two calls to the same Cell's GetInconsistent
// inside one Inconsistently closure may observe different values if another
// transaction commits in between. It must not be called from inside an
// Atomically transaction, since mixing an inconsistent read into a
// transaction's read set would silently defeat that transaction's
// isolation guarantee.
func Inconsistently[T any](fn func(ins *Inconsistent) (T, error)) (T, error) {
	var zero T
	if err := NoAtomic(); err != nil {
		return zero, err
	}
	return fn(&Inconsistent{})
}
