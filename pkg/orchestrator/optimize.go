package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/ledger"
	"github.com/papercomputeco/strata/pkg/perf"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
)

// TableReport describes one dynamic table.
type TableReport struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	ContentType string `json:"content_type"`
	FullText    bool   `json:"full_text"`
	Rows        int64  `json:"rows"`
	Analyzed    bool   `json:"analyzed"`
}

// OptimizationReport is the outcome of OptimizeStorage. Steps that could
// not run are listed in Warnings rather than failing the report.
type OptimizationReport struct {
	GeneratedAt           time.Time             `json:"generated_at"`
	Tables                []TableReport         `json:"tables"`
	Catalog               catalog.Stats         `json:"catalog"`
	PendingReconciliation int                   `json:"pending_reconciliation"`
	LedgerFlushed         int                   `json:"ledger_flushed,omitempty"`
	PrunedEntries         int                   `json:"pruned_entries,omitempty"`
	Recommendations       []perf.Recommendation `json:"recommendations"`
	Warnings              []string              `json:"warnings,omitempty"`
}

// OptimizeStorage refreshes planner statistics on one table, or on every
// dynamic table when table is nil, and reports the state of the engine
// together with regenerated recommendations. Nothing is changed beyond
// statistics, expired performance entries and ledger entries moved back
// to the relational store.
func (o *Orchestrator) OptimizeStorage(ctx context.Context, table *string) (*OptimizationReport, error) {
	tables, err := o.schema.Tables(ctx, "")
	if err != nil {
		return nil, err
	}
	if table != nil {
		i := slices.IndexFunc(tables, func(t schema.TableInfo) bool { return t.Name == *table })
		if i < 0 {
			return nil, storage.NotFoundError{ID: *table}
		}
		tables = tables[i : i+1]
	}

	r := &OptimizationReport{GeneratedAt: time.Now().UTC()}
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		r.Warnings = append(r.Warnings, msg)
		o.logger.Warn(msg)
	}

	db := o.schema.Driver()
	for _, t := range tables {
		tr := TableReport{Name: t.Name, Domain: t.Domain, ContentType: t.ContentType, FullText: t.FullText}
		if err := o.schema.Analyze(ctx, t.Name); err != nil {
			warn("analyze %s: %v", t.Name, err)
		} else {
			tr.Analyzed = true
		}
		if tr.Rows, err = schema.CountRecords(ctx, db, t.Name); err != nil {
			warn("count %s: %v", t.Name, err)
		}
		r.Tables = append(r.Tables, tr)
	}

	if r.Catalog, err = o.catalog.Stats(ctx); err != nil {
		warn("catalog statistics: %v", err)
	}

	if fb, ok := o.ledger.(*ledger.Fallback); ok {
		if r.LedgerFlushed, err = fb.Flush(ctx); err != nil {
			warn("flush reconciliation ledger: %v", err)
		}
	}
	if r.PendingReconciliation, err = o.ledger.Count(ctx); err != nil {
		warn("count reconciliation entries: %v", err)
	}

	if o.perf != nil && o.retention > 0 {
		if r.PrunedEntries, err = o.perf.Prune(ctx, time.Now().Add(-o.retention)); err != nil {
			warn("prune performance entries: %v", err)
		}
	}

	if o.recommender != nil {
		if r.Recommendations, err = o.recommender.Generate(ctx); err != nil {
			warn("generate recommendations: %v", err)
		}
	}

	o.logger.Info("optimized storage",
		"tables", len(r.Tables),
		"pending_reconciliation", r.PendingReconciliation,
		"recommendations", len(r.Recommendations),
		"warnings", len(r.Warnings),
	)
	return r, nil
}
