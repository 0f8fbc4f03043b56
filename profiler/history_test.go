package profiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MichaelACosta/Wyatt-STM/profiler"
	"github.com/MichaelACosta/Wyatt-STM/stm"
)

func TestConflictHistory_BoundedCapacity(t *testing.T) {
	h, err := profiler.NewConflictHistory(3)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		h.Record(profiler.ConflictEvent{TxID: uint64(i), CellID: stm.CellID(i)})
	}

	require.Equal(t, 3, h.Len())
	require.Len(t, h.Recent(), 3)
}

func TestConflictHistory_RecordAssignsID(t *testing.T) {
	h, err := profiler.NewConflictHistory(4)
	require.NoError(t, err)

	ev := h.Record(profiler.ConflictEvent{TxID: 1})
	require.NotEqual(t, ev.ID.String(), "00000000-0000-0000-0000-000000000000")
}
