// Package ingestcmder provides the ingest command for analyzing and storing
// documents.
package ingestcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/orchestrator"
)

type ingestCommander struct {
	flags enginecmder.Flags

	title       string
	domain      string
	author      string
	sourceURL   string
	contentType string
	language    string
	concurrency int
	dryRun      bool
	jsonOut     bool
}

const ingestLongDesc string = `Analyze documents and store them in the backend that suits them.

Each file becomes one document titled after its file name. Use "-" to read
a single document from stdin. The engine extracts features, picks a storage
strategy and writes the relational store, the vector store or both.

A document is "stored" when every store it needs accepted it, "degraded"
when one store is missing it (it is queued for reconciliation) and "failed"
otherwise.

Use --dry-run to print the decision without storing anything.

Examples:
  strata ingest notes/*.md
  strata ingest critique.txt --domain philosophy --author Kant
  curl -s https://example.com/paper.txt | strata ingest - --title "Paper" --source-url https://example.com/paper.txt
  strata ingest essay.txt --dry-run`

const ingestShortDesc string = "Analyze and store documents"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := enginecmder.Load(cmd, config.FlagConcurrency)
			if err != nil {
				return err
			}
			defer env.Close()
			return cmder.run(cmd.Context(), env, args)
		},
	}

	cmder.flags.AddFlags(cmd)
	config.AddIntFlag(cmd, config.StoreFlags, config.FlagConcurrency, &cmder.concurrency)
	cmd.Flags().StringVarP(&cmder.title, "title", "t", "", "Document title (default: file name)")
	cmd.Flags().StringVar(&cmder.domain, "domain", "", "Subject domain (detected when empty)")
	cmd.Flags().StringVar(&cmder.author, "author", "", "Document author")
	cmd.Flags().StringVar(&cmder.sourceURL, "source-url", "", "Where the document came from")
	cmd.Flags().StringVar(&cmder.contentType, "content-type", "", "Content type (classified from URL and size when empty)")
	cmd.Flags().StringVar(&cmder.language, "language", "", "ISO language code (default: en)")
	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Analyze only, do not store")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print results as JSON")

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, env *enginecmder.Env, paths []string) error {
	if c.title != "" && len(paths) > 1 {
		return fmt.Errorf("--title applies to a single document, got %d", len(paths))
	}

	items := make([]content.Item, 0, len(paths))
	for _, p := range paths {
		item, err := c.readItem(p)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	engine, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

	if c.dryRun {
		return c.analyze(ctx, engine, items)
	}

	batch := engine.IngestBatch(ctx, items)
	if c.jsonOut || !cliui.IsTerminal() {
		return json.NewEncoder(os.Stdout).Encode(batch)
	}

	fmt.Println()
	for i, it := range batch.Items {
		r := it.Result
		mark := cliui.SuccessMark
		switch r.Status {
		case content.StatusDegraded:
			mark = cliui.WarnMark
		case content.StatusFailed:
			mark = cliui.FailMark
		}
		fmt.Printf("  %s %s  %s  %s\n",
			mark,
			cliui.HeaderStyle.Render(items[i].Title),
			cliui.KeyStyle.Render(string(r.Strategy)),
			cliui.DimStyle.Render(r.TableName),
		)
		if it.Error != "" {
			fmt.Printf("      %s\n", cliui.WarnStyle.Render(it.Error))
		}
	}
	fmt.Printf("\n  %s stored, %s degraded, %s failed\n\n",
		cliui.ValueStyle.Render(fmt.Sprint(batch.Stored)),
		cliui.WarnStyle.Render(fmt.Sprint(batch.Degraded)),
		cliui.ValueStyle.Render(fmt.Sprint(batch.Failed)),
	)

	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", batch.Failed, len(items))
	}
	return nil
}

func (c *ingestCommander) analyze(ctx context.Context, engine *orchestrator.Orchestrator, items []content.Item) error {
	out := make([]orchestrator.Analysis, 0, len(items))
	for _, item := range items {
		a, err := engine.AnalyzeAndDecide(ctx, item)
		if err != nil {
			return fmt.Errorf("analyzing %q: %w", item.Title, err)
		}
		out = append(out, a)
	}

	if c.jsonOut || !cliui.IsTerminal() {
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Println()
	for _, a := range out {
		d := a.Decision
		fmt.Printf("  %s  %s %s\n",
			cliui.HeaderStyle.Render(a.Item.Title),
			cliui.KeyStyle.Render(string(d.Strategy)),
			cliui.ScoreStyle.Render(fmt.Sprintf("(%.2f)", d.Confidence)),
		)
		fmt.Printf("      %s %s  %s %s  %s %d bytes\n",
			cliui.DimStyle.Render("domain"), a.Features.DomainTag,
			cliui.DimStyle.Render("type"), a.Features.ContentType,
			cliui.DimStyle.Render("size"), a.Features.SizeBytes,
		)
		for _, r := range d.Reasons {
			fmt.Printf("      %s %s\n", cliui.DimStyle.Render("·"), r)
		}
	}
	fmt.Println()
	return nil
}

func (c *ingestCommander) readItem(path string) (content.Item, error) {
	var (
		data  []byte
		err   error
		title = c.title
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
		if title == "" {
			base := filepath.Base(path)
			title = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	if err != nil {
		return content.Item{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if title == "" {
		title = "untitled"
	}

	return content.NewItem(title, string(data), c.options()...), nil
}

func (c *ingestCommander) options() []content.Option {
	var opts []content.Option
	if c.domain != "" {
		opts = append(opts, content.WithDomain(c.domain))
	}
	if c.author != "" {
		opts = append(opts, content.WithAuthor(c.author))
	}
	if c.sourceURL != "" {
		opts = append(opts, content.WithSourceURL(c.sourceURL))
	}
	if c.contentType != "" {
		opts = append(opts, content.WithContentType(content.Type(c.contentType)))
	}
	if c.language != "" {
		opts = append(opts, content.WithLanguage(c.language))
	}
	return opts
}
