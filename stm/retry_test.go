package stm_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MichaelACosta/Wyatt-STM/stm"
)

func TestRetry_BlocksUntilConditionChanges(t *testing.T) {
	balance := stm.NewCell(0)

	done := make(chan int, 1)
	go func() {
		v, err := stm.Atomically(func(tx *stm.Tx) (int, error) {
			b := balance.Get(tx)
			if b < 100 {
				stm.Retry(tx)
			}
			return b, nil
		})
		if err != nil {
			t.Error(err)
			return
		}
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("retry returned before the balance ever reached 100")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		balance.Set(tx, 100)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-done:
		if v != 100 {
			t.Errorf("expected 100, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("retry never woke up after the balance changed")
	}
}

func TestRetry_TimesOutWithNoChange(t *testing.T) {
	cell := stm.NewCell(0)

	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		if cell.Get(tx) == 0 {
			stm.Retry(tx)
		}
		return struct{}{}, nil
	}, stm.WithMaxRetryWait(10*time.Millisecond))

	if err != stm.ErrRetryTimeout {
		t.Fatalf("expected ErrRetryTimeout, got %v", err)
	}
}

func TestRetry_PerCallDeadlineOverridesOption(t *testing.T) {
	cell := stm.NewCell(0)

	start := time.Now()
	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		if cell.Get(tx) == 0 {
			stm.Retry(tx, stm.DeadlineAfter(5*time.Millisecond))
		}
		return struct{}{}, nil
	}, stm.WithMaxRetryWait(time.Minute))

	if err != stm.ErrRetryTimeout {
		t.Fatalf("expected ErrRetryTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("per-call deadline did not take precedence over WithMaxRetryWait: waited %v", elapsed)
	}
}

func TestRetry_WithNoReadsIsAnError(t *testing.T) {
	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		stm.Retry(tx)
		return struct{}{}, nil
	})
	if err != stm.ErrRetryTimeout {
		t.Fatalf("expected ErrRetryTimeout for a retry with an empty read set, got %v", err)
	}
}

func TestRetry_MultipleWaitersAllWake(t *testing.T) {
	flag := stm.NewCell(false)
	const n = 10

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
				if !flag.Get(tx) {
					stm.Retry(tx)
				}
				return struct{}{}, nil
			}, stm.WithMaxRetryWait(time.Second))
			if err != nil {
				t.Error(err)
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		flag.Set(tx, true)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	wg.Wait()
}
