package profiler

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"

	"github.com/MichaelACosta/Wyatt-STM/stm"
)

// ConflictEvent records one commit-time conflict, enough to reconstruct
// which transaction collided with which cell and when, per the frame shape
// original_source/src/conflict_profiling_internal.cpp captures for its own
// conflict frames.
type ConflictEvent struct {
	ID       uuid.UUID
	TxID     uint64
	TxName   string
	CellID   stm.CellID
	CellName string
	At       time.Time
}

// ConflictHistory is a bounded log of conflict events, kept oldest first.
// Capacity is fixed at construction; once full, recording a new event
// evicts the least recently touched one.
type ConflictHistory struct {
	cache *lru.Cache[uuid.UUID, ConflictEvent]
}

// NewConflictHistory creates a history holding at most capacity events.
func NewConflictHistory(capacity int) (*ConflictHistory, error) {
	cache, err := lru.New[uuid.UUID, ConflictEvent](capacity)
	if err != nil {
		return nil, err
	}
	return &ConflictHistory{cache: cache}, nil
}

// Record adds ev to the history, assigning it a fresh correlation ID.
func (h *ConflictHistory) Record(ev ConflictEvent) ConflictEvent {
	ev.ID = uuid.New()
	h.cache.Add(ev.ID, ev)
	return ev
}

// Len reports how many events the history currently holds.
func (h *ConflictHistory) Len() int {
	return h.cache.Len()
}

// Recent returns every event currently retained, oldest first.
func (h *ConflictHistory) Recent() []ConflictEvent {
	keys := h.cache.Keys()
	events := make([]ConflictEvent, 0, len(keys))
	for _, k := range keys {
		if v, ok := h.cache.Peek(k); ok {
			events = append(events, v)
		}
	}
	return events
}
