package stm

import (
	"sync"
	"testing"
	"time"
)

func TestRWUMutex_ReadersDoNotBlockEachOther(t *testing.T) {
	m := newRWUMutex()
	m.RLock()
	done := make(chan struct{})
	go func() {
		m.RLock()
		close(done)
		m.RUnlock()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked behind first reader")
	}
	m.RUnlock()
}

func TestRWUMutex_WriterExcludesReaders(t *testing.T) {
	m := newRWUMutex()
	m.Lock()
	done := make(chan struct{})
	go func() {
		m.RLock()
		close(done)
		m.RUnlock()
	}()
	select {
	case <-done:
		t.Fatal("reader proceeded while writer held the lock")
	case <-time.After(20 * time.Millisecond):
	}
	m.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader never proceeded after writer released the lock")
	}
}

func TestRWUMutex_UpgradeWaitsForOtherReaders(t *testing.T) {
	m := newRWUMutex()
	m.RLock() // caller's own read lock, about to be upgraded
	m.RLock() // a second, independent reader

	upgraded := make(chan struct{})
	go func() {
		m.Upgrade()
		close(upgraded)
		m.Unlock()
	}()

	select {
	case <-upgraded:
		t.Fatal("upgrade completed while another reader was still holding the lock")
	case <-time.After(20 * time.Millisecond):
	}

	m.RUnlock() // the second reader leaves

	select {
	case <-upgraded:
	case <-time.After(time.Second):
		t.Fatal("upgrade never completed after the other reader left")
	}
}

func TestRWUMutex_ExclusiveWaitsForReaders(t *testing.T) {
	m := newRWUMutex()
	m.RLock()

	locked := make(chan struct{})
	go func() {
		m.Lock()
		close(locked)
		m.Unlock()
	}()

	select {
	case <-locked:
		t.Fatal("exclusive lock acquired while a reader still held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	m.RUnlock()

	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("exclusive lock never acquired after the reader left")
	}
}

func TestSortCells_AscendingByID(t *testing.T) {
	cells := []lockedCell{{id: 3}, {id: 1}, {id: 2}}
	sortCells(cells)
	for i := 1; i < len(cells); i++ {
		if cells[i-1].id > cells[i].id {
			t.Fatalf("cells not sorted ascending: %v", cells)
		}
	}
}

func TestCheckStale_DetectsAdvancedCellWithoutPanicking(t *testing.T) {
	cfg := defaultTxConfig()
	cell := NewCell(0)

	tx := newTopLevelTx(&cfg)
	tx.readFresh(cell.core)

	cell.core.lock().Lock()
	cell.core.publishLocked(1)
	cell.core.lock().Unlock()

	id, stale := checkStale(tx)
	if !stale {
		t.Fatal("expected checkStale to report the advanced cell as stale")
	}
	if id != cell.core.id() {
		t.Errorf("expected stale cell id %d, got %d", cell.core.id(), id)
	}
}

func TestGoroutineID_DistinctPerGoroutine(t *testing.T) {
	a := goroutineID()
	var b int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b = goroutineID()
	}()
	wg.Wait()
	if a == b {
		t.Fatalf("expected distinct goroutine IDs, got %d and %d", a, b)
	}
	if a == 0 || b == 0 {
		t.Fatalf("expected nonzero goroutine IDs, got %d and %d", a, b)
	}
}
