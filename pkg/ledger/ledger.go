// Package ledger records items whose stores disagree after a partial write
// so an external reconciler can repair them.
package ledger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/strata/pkg/strategy"
)

// Side names one of the two stores.
type Side string

const (
	SideRelational Side = "relational"
	SideVector     Side = "vector"
)

// Entry is a pending reconciliation.
type Entry struct {
	ItemID    string            `json:"item_id"`
	Strategy  strategy.Strategy `json:"strategy"`
	TableName string            `json:"table_name,omitempty"`
	Missing   []Side            `json:"missing"`
	Reason    string            `json:"reason"`

	// Attempts counts how many writes recorded this item.
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger stores reconciliation entries. Recording an item that already has
// an entry replaces its missing sides and reason and bumps Attempts.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	Resolve(ctx context.Context, itemID string) error
	Pending(ctx context.Context, limit int) ([]Entry, error)
	Count(ctx context.Context) (int, error)
}

func joinSides(sides []Side) string {
	s := make([]string, len(sides))
	for i, side := range sides {
		s[i] = string(side)
	}
	slices.Sort(s)
	return strings.Join(s, ",")
}

func splitSides(s string) []Side {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]Side, len(parts))
	for i, p := range parts {
		out[i] = Side(p)
	}
	return out
}
