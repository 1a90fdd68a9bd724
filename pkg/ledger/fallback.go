package ledger

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/papercomputeco/strata/pkg/logger"
)

// Fallback writes to a primary ledger and falls back to a secondary one
// when the primary fails, typically SQL backed by Memory. Reads merge both.
type Fallback struct {
	primary   Ledger
	secondary Ledger
	logger    *slog.Logger
}

var _ Ledger = (*Fallback)(nil)

// NewFallback creates a Fallback ledger.
func NewFallback(primary, secondary Ledger, log *slog.Logger) *Fallback {
	if log == nil {
		log = logger.Nop()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: log}
}

func (f *Fallback) Record(ctx context.Context, e Entry) error {
	err := f.primary.Record(ctx, e)
	if err == nil {
		return nil
	}

	f.logger.Warn("primary reconciliation ledger unavailable, keeping entry in memory",
		"item_id", e.ItemID, "error", err)
	if serr := f.secondary.Record(ctx, e); serr != nil {
		return errors.Join(err, serr)
	}
	return nil
}

func (f *Fallback) Resolve(ctx context.Context, itemID string) error {
	return errors.Join(f.primary.Resolve(ctx, itemID), f.secondary.Resolve(ctx, itemID))
}

// Pending returns entries from both ledgers; for an item present in both,
// the secondary (more recent) entry wins.
func (f *Fallback) Pending(ctx context.Context, limit int) ([]Entry, error) {
	secondary, err := f.secondary.Pending(ctx, 0)
	if err != nil {
		return nil, err
	}
	primary, perr := f.primary.Pending(ctx, 0)
	if perr != nil {
		f.logger.Warn("primary reconciliation ledger unavailable", "error", perr)
	}

	seen := make(map[string]struct{}, len(secondary))
	out := slices.Clone(secondary)
	for _, e := range secondary {
		seen[e.ItemID] = struct{}{}
	}
	for _, e := range primary {
		if _, ok := seen[e.ItemID]; !ok {
			out = append(out, e)
		}
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

func (f *Fallback) Count(ctx context.Context) (int, error) {
	entries, err := f.Pending(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Flush moves entries held by the secondary ledger into the primary. It
// stops at the first primary failure.
func (f *Fallback) Flush(ctx context.Context) (int, error) {
	entries, err := f.secondary.Pending(ctx, 0)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, e := range entries {
		if err := f.primary.Record(ctx, e); err != nil {
			return moved, err
		}
		if err := f.secondary.Resolve(ctx, e.ItemID); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}
