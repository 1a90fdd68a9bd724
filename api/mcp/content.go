package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/strategy"
	"github.com/papercomputeco/strata/pkg/writer"
)

var (
	analyzeToolName    = "analyze_content"
	analyzeDescription = "Analyze a document and report the storage strategy it would get (relational, vector or hybrid) with the features and reasons behind the decision. Nothing is stored."

	ingestToolName    = "ingest_content"
	ingestDescription = "Store a document. The engine picks the storage strategy, writes the relational and vector stores and reports whether the item was stored, degraded (one store missing) or failed."
)

// ContentInput describes a document to analyze or ingest.
type ContentInput struct {
	Title       string `json:"title" jsonschema:"document title"`
	Content     string `json:"content" jsonschema:"full document text"`
	Domain      string `json:"domain,omitempty" jsonschema:"subject domain such as philosophy or science; detected when empty"`
	Author      string `json:"author,omitempty" jsonschema:"document author"`
	SourceURL   string `json:"source_url,omitempty" jsonschema:"where the document came from; used for its id and content type"`
	ContentType string `json:"content_type,omitempty" jsonschema:"book, academic_paper, reference, large_document, medium_document or small_document; classified when empty"`
	Language    string `json:"language,omitempty" jsonschema:"ISO language code (default: en)"`
}

func (in ContentInput) item() content.Item {
	var opts []content.Option
	if in.Domain != "" {
		opts = append(opts, content.WithDomain(in.Domain))
	}
	if in.Author != "" {
		opts = append(opts, content.WithAuthor(in.Author))
	}
	if in.SourceURL != "" {
		opts = append(opts, content.WithSourceURL(in.SourceURL))
	}
	if in.ContentType != "" {
		opts = append(opts, content.WithContentType(content.Type(in.ContentType)))
	}
	if in.Language != "" {
		opts = append(opts, content.WithLanguage(in.Language))
	}
	return content.NewItem(in.Title, in.Content, opts...)
}

func (in ContentInput) validate() error {
	if in.Title == "" && in.Content == "" {
		return errors.New("title or content is required")
	}
	return nil
}

// AnalyzeOutput is the decision for an analyzed document.
type AnalyzeOutput struct {
	ItemID   string                 `json:"item_id"`
	Domain   string                 `json:"domain"`
	Features features.FeatureVector `json:"features"`
	Decision strategy.Decision      `json:"decision"`
}

// IngestOutput is the outcome of storing a document.
type IngestOutput struct {
	ItemID       string   `json:"item_id"`
	Strategy     string   `json:"strategy"`
	TableName    string   `json:"table_name,omitempty"`
	TableCreated bool     `json:"table_created,omitempty"`
	Status       string   `json:"status"`
	Outcome      string   `json:"outcome"`
	Relational   bool     `json:"relational"`
	Vector       bool     `json:"vector"`
	Missing      []string `json:"missing,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

func ingestOutput(r writer.WriteResult) IngestOutput {
	out := IngestOutput{
		ItemID:       r.ItemID,
		Strategy:     string(r.Strategy),
		TableName:    r.TableName,
		TableCreated: r.TableCreated,
		Status:       string(r.Status),
		Outcome:      string(r.Outcome),
		Relational:   r.Relational,
		Vector:       r.Vector,
		Reason:       r.Reason(),
	}
	for _, side := range r.Missing {
		out.Missing = append(out.Missing, string(side))
	}
	return out
}

func (s *Server) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, input ContentInput) (*mcp.CallToolResult, AnalyzeOutput, error) {
	logger := s.config.Logger

	if err := input.validate(); err != nil {
		return errorResult("Invalid input: %v", err), AnalyzeOutput{}, nil
	}

	a, err := s.config.Engine.AnalyzeAndDecide(ctx, input.item())
	if err != nil {
		logger.Error("failed to analyze content", "title", input.Title, "error", err)
		return errorResult("Failed to analyze content: %v", err), AnalyzeOutput{}, nil
	}

	output := AnalyzeOutput{
		ItemID:   a.Item.ID,
		Domain:   a.Item.DomainTag,
		Features: a.Features,
		Decision: a.Decision,
	}
	res, err := jsonResult(output)
	return res, output, err
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input ContentInput) (*mcp.CallToolResult, IngestOutput, error) {
	logger := s.config.Logger

	if err := input.validate(); err != nil {
		return errorResult("Invalid input: %v", err), IngestOutput{}, nil
	}

	item := input.item()
	logger.Debug("MCP ingest request", "item_id", item.ID, "title", item.Title, "size_bytes", item.SizeBytes)

	wr, err := s.config.Engine.IngestContent(ctx, item)
	if err != nil {
		logger.Error("failed to ingest content", "item_id", item.ID, "error", err)
		return errorResult("Failed to ingest content %s: %v", item.ID, err), IngestOutput{}, nil
	}

	output := ingestOutput(wr)

	res, err := jsonResult(output)
	return res, output, err
}
