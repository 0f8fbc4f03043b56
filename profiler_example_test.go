package wyattstm_test

import (
	"context"
	"fmt"

	"github.com/MichaelACosta/Wyatt-STM/profiler"
	"github.com/MichaelACosta/Wyatt-STM/stm"
)

// Example demonstrates a transfer between two transactional cells observed
// end-to-end by a profiler.Recorder wired in as stm.Hooks.
func Example() {
	rec, err := profiler.NewRecorder(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	defer rec.Close()

	from := stm.NewCell(100)
	to := stm.NewCell(0)

	_, err = stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
		stm.NameCell(tx, from, "checking")
		stm.NameCell(tx, to, "savings")

		from.Set(tx, from.Get(tx)-40)
		to.Set(tx, to.Get(tx)+40)
		return struct{}{}, nil
	}, stm.WithHooks(rec))
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(from.GetReadOnly(), to.GetReadOnly())
	// Output: 60 40
}
