// Package optimizecmder provides the optimize command.
package optimizecmder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
	recommendcmder "github.com/papercomputeco/strata/cmd/strata/recommendations"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/orchestrator"
	"github.com/papercomputeco/strata/pkg/strategy"
)

type optimizeCommander struct {
	flags enginecmder.Flags

	table   string
	jsonOut bool
}

const optimizeLongDesc string = `Refresh planner statistics and review the storage engine.

Runs ANALYZE on one dynamic table or all of them, moves buffered
reconciliation entries back into the relational store, prunes expired
performance entries and regenerates optimization recommendations.
Nothing else is changed.

Examples:
  strata optimize
  strata optimize --table content_philosophy_book_1a2b3c4d
  strata optimize --json`

const optimizeShortDesc string = "Refresh statistics and regenerate recommendations"

func NewOptimizeCmd() *cobra.Command {
	cmder := &optimizeCommander{}

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: optimizeShortDesc,
		Long:  optimizeLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := enginecmder.Load(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return cmder.run(cmd.Context(), env)
		},
	}

	cmder.flags.AddFlags(cmd)
	cmd.Flags().StringVar(&cmder.table, "table", "", "Only optimize this dynamic table")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the report as JSON")

	return cmd
}

func (c *optimizeCommander) run(ctx context.Context, env *enginecmder.Env) error {
	engine, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

	var table *string
	if c.table != "" {
		table = &c.table
	}

	interactive := !c.jsonOut && cliui.IsTerminal()

	var report *orchestrator.OptimizationReport
	optimize := func() error {
		var err error
		report, err = engine.OptimizeStorage(ctx, table)
		return err
	}
	if interactive {
		err = cliui.Step(os.Stdout, "Optimizing storage", optimize)
	} else {
		err = optimize()
	}
	if err != nil {
		return err
	}

	if !interactive {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	printReport(report)
	return recommendcmder.Print(report.Recommendations)
}

func printReport(r *orchestrator.OptimizationReport) {
	fmt.Printf("\n%s\n\n", cliui.HeaderStyle.Render("Catalog"))
	fmt.Printf("  %s %d  %s %.2f  %s %d\n",
		cliui.DimStyle.Render("items"), r.Catalog.Total,
		cliui.DimStyle.Render("avg confidence"), r.Catalog.AverageConfidence,
		cliui.DimStyle.Render("pending reconciliation"), r.PendingReconciliation,
	)

	strategies := make([]strategy.Strategy, 0, len(r.Catalog.ByStrategy))
	for s := range r.Catalog.ByStrategy {
		strategies = append(strategies, s)
	}
	sort.Slice(strategies, func(i, j int) bool { return strategies[i] < strategies[j] })
	for _, s := range strategies {
		fmt.Printf("  %s %d\n", cliui.KeyStyle.Render(fmt.Sprintf("%-26s", s)), r.Catalog.ByStrategy[s])
	}

	fmt.Printf("\n%s\n\n", cliui.HeaderStyle.Render(fmt.Sprintf("Dynamic tables (%d)", len(r.Tables))))
	for _, t := range r.Tables {
		mark := cliui.SuccessMark
		if !t.Analyzed {
			mark = cliui.WarnMark
		}
		fmt.Printf("  %s %s %s\n",
			mark,
			cliui.KeyStyle.Render(t.Name),
			cliui.DimStyle.Render(fmt.Sprintf("%d rows", t.Rows)),
		)
	}

	if r.LedgerFlushed > 0 || r.PrunedEntries > 0 {
		fmt.Printf("\n  %s %d ledger entries restored, %d performance entries pruned\n",
			cliui.SuccessMark, r.LedgerFlushed, r.PrunedEntries)
	}
	for _, w := range r.Warnings {
		fmt.Printf("  %s %s\n", cliui.WarnMark, cliui.WarnStyle.Render(w))
	}
	fmt.Println()
}
