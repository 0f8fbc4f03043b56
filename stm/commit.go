package stm

// commitResult is the outcome of one attempt to commit a top-level
// transaction: either it committed, or it hit a conflict on a specific
// cell. Ordinary conflicts are reported this way rather than by panicking,
// since they are expected and handled by the control loop in control.go;
// only Retry and an explicit Validate call unwind via panic, since those
// must interrupt an arbitrarily deep user closure (see DESIGN.md).
type commitResult struct {
	committed bool
	conflict  CellID
}

// acquired tracks one lock this attempt took, so it can be released in the
// right way (Unlock vs RUnlock) regardless of how the attempt ends.
type acquired struct {
	core      anyCellCore
	exclusive bool
}

// attemptCommit runs the commit algorithm of spec.md §4.4 once: lock every
// cell the transaction touched in ascending CellID order, validate every
// cell it read, publish every cell it wrote, and release the locks.
func attemptCommit(tx *Tx) commitResult {
	for _, fn := range tx.beforeCommit {
		fn(tx)
	}

	cells := mergedTouchedCells(tx)
	if len(cells) == 0 {
		return commitResult{committed: true}
	}

	held := make([]acquired, 0, len(cells))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			a := held[i]
			if a.exclusive {
				a.core.lock().Unlock()
			} else {
				a.core.lock().RUnlock()
			}
		}
	}

	for _, lc := range cells {
		id := lc.id
		_, wantsWrite := lookupWrite(tx, id)
		if alreadyHeld, ok := tx.heldReadLocks[id]; ok && alreadyHeld != nil {
			if wantsWrite {
				lc.core.lock().Upgrade()
				held = append(held, acquired{core: lc.core, exclusive: true})
			} else {
				held = append(held, acquired{core: lc.core, exclusive: false})
			}
			continue
		}
		if wantsWrite {
			lc.core.lock().Lock()
			held = append(held, acquired{core: lc.core, exclusive: true})
		} else {
			lc.core.lock().RLock()
			held = append(held, acquired{core: lc.core, exclusive: false})
		}
	}

	for _, lc := range cells {
		e, ok := lookupRead(tx, lc.id)
		if !ok {
			continue
		}
		if lc.core.versionLocked() != e.version {
			release()
			tx.heldReadLocks = make(map[CellID]anyCellCore)
			tx.readLockDepth = 0
			if tx.cfg != nil && tx.cfg.logger != nil {
				tx.cfg.logger.Debug("stm: commit validation failed", "tx", tx.id, "cell", lc.id)
			}
			return commitResult{conflict: lc.id}
		}
	}

	for _, lc := range cells {
		if w, ok := lookupWrite(tx, lc.id); ok {
			lc.core.publishLocked(w.value)
		}
	}

	release()
	tx.heldReadLocks = make(map[CellID]anyCellCore)
	tx.readLockDepth = 0
	if tx.cfg != nil && tx.cfg.logger != nil {
		tx.cfg.logger.Debug("stm: published", "tx", tx.id, "cells", len(cells))
	}
	return commitResult{committed: true}
}

// mergedTouchedCells returns the union, across tx and every ancestor it was
// nested under and has since been folded into, of every cell read or
// written, each exactly once.
func mergedTouchedCells(tx *Tx) []lockedCell {
	seen := make(map[CellID]anyCellCore)
	for id, e := range tx.reads {
		seen[id] = e.core
	}
	for id, w := range tx.writes {
		seen[id] = w.core
	}
	cells := make([]lockedCell, 0, len(seen))
	for id, core := range seen {
		cells = append(cells, lockedCell{id: id, core: core})
	}
	sortCells(cells)
	return cells
}
