// Package recommendcmder provides the recommendations command for reviewing,
// applying and dismissing optimization recommendations.
package recommendcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/perf"
)

const recommendationsLongDesc string = `Review optimization recommendations.

Recommendations are generated by "strata optimize" from tracked query
performance and the storage catalog. They are never applied automatically:
an operator marks each one applied or dismissed. A dismissed or applied
recommendation is not raised again.

Examples:
  strata recommendations list
  strata recommendations list --status applied
  strata recommendations apply <id>
  strata recommendations dismiss <id>`

const recommendationsShortDesc string = "Review optimization recommendations"

func NewRecommendationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   recommendationsShortDesc,
		Long:    recommendationsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newStatusCmd("apply", perf.StatusApplied))
	cmd.AddCommand(newStatusCmd("dismiss", perf.StatusDismissed))

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		flags   enginecmder.Flags
		status  string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := enginecmder.Load(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			engine, err := env.Open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

			recs, err := engine.Recommendations(ctx, perf.RecommendationStatus(status))
			if err != nil {
				return err
			}

			if jsonOut || !cliui.IsTerminal() {
				return json.NewEncoder(os.Stdout).Encode(recs)
			}
			return Print(recs)
		},
	}

	flags.AddFlags(cmd)
	cmd.Flags().StringVar(&status, "status", "", "Only list pending, applied or dismissed recommendations")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print recommendations as JSON")

	return cmd
}

func newStatusCmd(verb string, status perf.RecommendationStatus) *cobra.Command {
	var flags enginecmder.Flags

	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("Mark a pending recommendation %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := enginecmder.Load(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			engine, err := env.Open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

			if err := engine.SetRecommendationStatus(ctx, args[0], status); err != nil {
				return fmt.Errorf("%s recommendation %s: %w", verb, args[0], err)
			}
			fmt.Printf("  %s Marked %s %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(args[0]), status)
			return nil
		},
	}

	flags.AddFlags(cmd)
	return cmd
}

// Markdown renders recommendations as a markdown document.
func Markdown(recs []perf.Recommendation) string {
	var b strings.Builder
	b.WriteString("# Recommendations\n\n")
	if len(recs) == 0 {
		b.WriteString("_No recommendations._\n")
		return b.String()
	}
	for _, r := range recs {
		fmt.Fprintf(&b, "## %s\n\n", r.Title)
		fmt.Fprintf(&b, "`%s` · **%s** · %s · confidence %.2f · est. improvement %.0f%%\n\n",
			r.ID, r.Type, r.Status, r.ConfidenceScore, r.EstimatedImprovementPercent)
		if r.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", r.Description)
		}
	}
	return b.String()
}

// Print renders recommendations for a terminal.
func Print(recs []perf.Recommendation) error {
	rendered, err := cliui.RenderMarkdown(Markdown(recs))
	if err != nil {
		return err
	}
	fmt.Print(rendered)
	return nil
}
