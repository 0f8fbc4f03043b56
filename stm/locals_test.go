package stm_test

import (
	"testing"
	"time"

	"github.com/MichaelACosta/Wyatt-STM/stm"
)

func TestTransactionLocal_DefaultsUntilSet(t *testing.T) {
	local := stm.NewTransactionLocal("default")

	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		if got := local.Get(tx); got != "default" {
			t.Errorf("expected default before Set, got %q", got)
		}
		local.Set(tx, "changed")
		if got := local.Get(tx); got != "changed" {
			t.Errorf("expected changed after Set, got %q", got)
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTransactionLocal_ScopedPerAttempt(t *testing.T) {
	local := stm.NewTransactionLocal(0)
	ready := stm.NewCell(false)

	go func() {
		time.Sleep(10 * time.Millisecond)
		stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
			ready.Set(tx, true)
			return struct{}{}, nil
		})
	}()

	attempt := 0
	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		attempt++
		if got := local.Get(tx); got != 0 {
			t.Errorf("expected a fresh attempt to see the default again, got %d", got)
		}
		local.Set(tx, attempt)
		if !ready.Get(tx) {
			stm.Retry(tx)
		}
		return struct{}{}, nil
	}, stm.WithMaxRetryWait(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if attempt < 2 {
		t.Errorf("expected at least one retry before the closure observed ready=true, got %d attempts", attempt)
	}
}

func TestTransactionLocalFlag_TestAndSet(t *testing.T) {
	flag := stm.NewTransactionLocalFlag()

	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		if flag.IsSet(tx) {
			t.Error("flag should start unset")
		}
		if flag.TestAndSet(tx) {
			t.Error("first TestAndSet should report the prior (unset) value")
		}
		if !flag.TestAndSet(tx) {
			t.Error("second TestAndSet should report the now-set value")
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTransactionLocal_NestedInheritsParent(t *testing.T) {
	local := stm.NewTransactionLocal("")

	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		local.Set(tx, "parent-value")
		_, nestedErr := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
			if got := local.Get(tx); got != "parent-value" {
				t.Errorf("expected nested transaction to inherit parent's local, got %q", got)
			}
			return struct{}{}, nil
		})
		return struct{}{}, nestedErr
	})
	if err != nil {
		t.Fatal(err)
	}
}
