// Package reportcmder provides the report command for query performance
// statistics.
package reportcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/perf"
)

type reportCommander struct {
	flags enginecmder.Flags

	domain  string
	since   time.Duration
	jsonOut bool
}

const reportLongDesc string = `Summarize tracked query performance.

Every search is recorded with its latency, row count and the stores that
served it. The report groups those entries by query type and domain and
shows count, mean, median, 95th percentile and max latency.

Examples:
  strata report
  strata report --since 1h
  strata report --domain philosophy --json`

const reportShortDesc string = "Query performance by type and domain"

func NewReportCmd() *cobra.Command {
	cmder := &reportCommander{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: reportShortDesc,
		Long:  reportLongDesc,
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
	cmd.Flags().StringVar(&cmder.domain, "domain", "", "Only report queries filtered on this domain")
	cmd.Flags().DurationVar(&cmder.since, "since", 24*time.Hour, "Look-back window")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the report as JSON")

	return cmd
}

func (c *reportCommander) run(ctx context.Context, env *enginecmder.Env) error {
	engine, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

	var domain *string
	if c.domain != "" {
		domain = &c.domain
	}
	since := time.Now().UTC().Add(-c.since)

	stats, err := engine.PerformanceReport(ctx, domain, since)
	if err != nil {
		return err
	}

	if c.jsonOut || !cliui.IsTerminal() {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}
	Print(os.Stdout, since, stats)
	return nil
}

// Print renders aggregate statistics as an aligned table.
func Print(w io.Writer, since time.Time, stats []perf.AggregateStat) {
	fmt.Fprintf(w, "\n%s %s\n\n",
		cliui.HeaderStyle.Render("Query performance since"),
		cliui.DimStyle.Render(since.Format(time.RFC3339)),
	)
	if len(stats) == 0 {
		fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("No queries recorded."))
		return
	}

	fmt.Fprintf(w, "  %-10s %-16s %7s %9s %9s %9s %9s %8s\n",
		"TYPE", "DOMAIN", "COUNT", "AVG ms", "P50 ms", "P95 ms", "MAX ms", "PARTIAL")
	for _, s := range stats {
		domain := s.Domain
		if domain == "" {
			domain = "-"
		}
		fmt.Fprintf(w, "  %-10s %-16s %7d %9.1f %9.1f %9.1f %9.1f %8d\n",
			s.QueryType, cliui.Truncate(domain, 16), s.Count, s.AvgMs, s.P50Ms, s.P95Ms, s.MaxMs, s.Partial)
	}
	fmt.Fprintln(w)
}
