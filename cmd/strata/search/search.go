// Package searchcmder provides the search command for hybrid search over
// stored documents.
package searchcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/query"
)

type searchCommander struct {
	flags enginecmder.Flags

	query     string
	filters   []string
	topK      int
	threshold float64
	quiet     bool
	jsonOut   bool
}

const searchLongDesc string = `Search stored documents by keyword and meaning at once.

The query runs against the relational store (full-text and metadata) and the
vector store (semantic similarity) in parallel. Results are fused into one
ranking. If one store cannot answer, the results from the other are shown
and marked partial.

An empty query returns documents matching the filters only.

Use --quiet to output only document ids, one per line.

Examples:
  strata search "categorical imperative"
  strata search "duty and reason" --filter domain=philosophy --top 10
  strata search "" --filter author=Kant
  strata search "virtue" --threshold 0.5 --quiet`

const searchShortDesc string = "Hybrid search over stored documents"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			env, err := enginecmder.Load(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return cmder.run(cmd.Context(), env, os.Stdout)
		},
	}

	cmder.flags.AddFlags(cmd)
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 10, "Number of results to return")
	cmd.Flags().StringArrayVarP(&cmder.filters, "filter", "f", nil, "Exact-match filter key=value (domain, language, content_type, author)")
	cmd.Flags().Float64Var(&cmder.threshold, "threshold", 0, "Minimum vector similarity between 0 and 1")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only document ids, one per line (for piping)")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print results as JSON")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, env *enginecmder.Env, w io.Writer) error {
	filters, err := ParseFilters(c.filters)
	if err != nil {
		return err
	}

	engine, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

	res, err := engine.Search(ctx, c.query, filters, c.topK, c.threshold)
	if err != nil {
		return err
	}

	switch {
	case c.quiet:
		for _, r := range res.Results {
			fmt.Fprintln(w, r.ID)
		}
		return nil
	case c.jsonOut || !cliui.IsTerminal():
		return json.NewEncoder(w).Encode(res)
	}

	Print(w, c.query, res)
	return nil
}

// ParseFilters turns key=value pairs into a filter map.
func ParseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

// Print renders a search result for a terminal.
func Print(w io.Writer, q string, res *query.SearchResult) {
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
	} else {
		fmt.Fprintf(w, "\n%s %s\n\n",
			cliui.HeaderStyle.Render("Search Results for:"),
			cliui.KeyStyle.Render(fmt.Sprintf("%q", q)),
		)
	}

	for i, r := range res.Results {
		sources := make([]string, 0, len(r.Sources))
		for _, s := range r.Sources {
			sources = append(sources, string(s))
		}
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.RankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.HeaderStyle.Render(r.Title),
			cliui.ScoreStyle.Render(fmt.Sprintf("score %.3f (vector %.3f, text %.3f) via %s",
				r.Score, r.VectorScore, r.TextScore, strings.Join(sources, "+"))),
		)

		var meta []string
		for _, kv := range [][2]string{{"id", r.ID}, {"domain", r.Domain}, {"author", r.Author}, {"type", r.ContentType}} {
			if kv[1] != "" {
				meta = append(meta, cliui.DimStyle.Render(kv[0])+" "+kv[1])
			}
		}
		fmt.Fprintf(w, "      %s\n", strings.Join(meta, "  "))

		if r.Snippet != "" {
			snippet := strings.Join(strings.Fields(r.Snippet), " ")
			fmt.Fprintf(w, "      %s\n", cliui.ValueStyle.Render(cliui.Truncate(snippet, 100)))
		}
		fmt.Fprintln(w)
	}

	if res.Partial {
		excluded := make([]string, 0, len(res.Excluded))
		for _, b := range res.Excluded {
			excluded = append(excluded, string(b))
		}
		fmt.Fprintf(w, "  %s %s\n\n",
			cliui.WarnMark,
			cliui.WarnStyle.Render("partial results: "+strings.Join(excluded, ", ")+" store unavailable"),
		)
	}
}
