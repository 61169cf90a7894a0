package rag

import (
	"sync"
	"time"
)

// ConversationTurn records one executed query and its effect. Turns are the
// grounding context handed back to the query generator.
type ConversationTurn struct {
	Timestamp time.Time
	Question  string
	Query     string
	Operation string
	Summary   string
	Raw       interface{}
}

// History is a bounded, append-only ring of recent turns. Insertion beyond
// capacity evicts the oldest turn. One History belongs to one call session.
type History struct {
	mu       sync.RWMutex
	turns    []ConversationTurn
	capacity int
}

const DefaultHistoryCapacity = 10

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity}
}

// Record appends a turn, evicting the oldest when full.
func (h *History) Record(turn ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn)
	if len(h.turns) > h.capacity {
		h.turns = h.turns[len(h.turns)-h.capacity:]
	}
}

// Recent returns up to n turns in insertion order, most recent last.
func (h *History) Recent(n int) []ConversationTurn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > len(h.turns) {
		n = len(h.turns)
	}
	if n <= 0 {
		return nil
	}
	out := make([]ConversationTurn, n)
	copy(out, h.turns[len(h.turns)-n:])
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
