package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/pkg/query"
)

var (
	searchToolName    = "hybrid_search"
	searchDescription = "Search stored documents by keyword and meaning at once. Results from the relational and vector stores are fused and ranked; a partial result names the store that could not answer."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query          string            `json:"query" jsonschema:"the search query text"`
	Filters        map[string]string `json:"filters,omitempty" jsonschema:"exact-match filters on domain, language, content_type or author"`
	Limit          int               `json:"limit,omitempty" jsonschema:"number of results to return (default: 10)"`
	ScoreThreshold float64           `json:"score_threshold,omitempty" jsonschema:"minimum vector similarity between 0 and 1"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	Score       float64  `json:"score"`
	VectorScore float64  `json:"vector_score"`
	TextScore   float64  `json:"text_score"`
	Sources     []string `json:"sources"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query    string         `json:"query"`
	Results  []SearchResult `json:"results"`
	Count    int            `json:"count"`
	Partial  bool           `json:"partial"`
	Excluded []string       `json:"excluded,omitempty"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP search request",
		"query", input.Query,
		"filters", input.Filters,
		"limit", input.Limit,
	)

	if input.ScoreThreshold < 0 || input.ScoreThreshold > 1 {
		return errorResult("score_threshold must be between 0 and 1"), SearchOutput{}, nil
	}

	res, err := s.config.Engine.Search(ctx, input.Query, input.Filters, input.Limit, input.ScoreThreshold)
	if err != nil {
		if errors.Is(err, query.ErrUnknownFilter) {
			return errorResult("Invalid filters: %v", err), SearchOutput{}, nil
		}
		logger.Error("search failed", "query", input.Query, "error", err)
		return errorResult("Search failed: %v", err), SearchOutput{}, nil
	}

	output := buildSearchOutput(input.Query, res)
	result, err := jsonResult(output)
	return result, output, err
}

// buildSearchOutput converts an engine result into the tool output.
func buildSearchOutput(q string, res *query.SearchResult) SearchOutput {
	out := SearchOutput{
		Query:   q,
		Results: make([]SearchResult, 0, len(res.Results)),
		Partial: res.Partial,
	}
	for _, b := range res.Excluded {
		out.Excluded = append(out.Excluded, string(b))
	}

	for _, r := range res.Results {
		sr := SearchResult{
			ID:          r.ID,
			Title:       r.Title,
			Author:      r.Author,
			Domain:      r.Domain,
			ContentType: r.ContentType,
			SourceURL:   r.SourceURL,
			Snippet:     r.Snippet,
			Score:       r.Score,
			VectorScore: r.VectorScore,
			TextScore:   r.TextScore,
			Sources:     make([]string, 0, len(r.Sources)),
		}
		for _, b := range r.Sources {
			sr.Sources = append(sr.Sources, string(b))
		}
		if !r.CreatedAt.IsZero() {
			sr.CreatedAt = r.CreatedAt.Format(time.RFC3339)
		}
		out.Results = append(out.Results, sr)
	}
	out.Count = len(out.Results)
	return out
}
