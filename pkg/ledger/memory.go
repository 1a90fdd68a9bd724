package ledger

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Ledger. Entries are lost on exit; it backs the
// SQL ledger while the relational store is unavailable.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Ledger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	e.Missing = slices.Clone(e.Missing)
	if prev, ok := m.entries[e.ItemID]; ok {
		e.CreatedAt = prev.CreatedAt
		e.Attempts = prev.Attempts + 1
	} else {
		e.CreatedAt = now
		e.Attempts = 1
	}
	e.UpdatedAt = now
	m.entries[e.ItemID] = e
	return nil
}

func (m *Memory) Resolve(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, itemID)
	return nil
}

func (m *Memory) Pending(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}
