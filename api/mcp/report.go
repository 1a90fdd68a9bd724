package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/pkg/orchestrator"
	"github.com/papercomputeco/strata/pkg/perf"
	"github.com/papercomputeco/strata/pkg/storage"
)

var (
	optimizeToolName    = "optimize_storage"
	optimizeDescription = "Refresh planner statistics on one dynamic table or all of them and report table sizes, catalog statistics, the reconciliation backlog and regenerated optimization recommendations."

	reportToolName    = "query_performance_report"
	reportDescription = "Summarize tracked query performance by query type and domain: count, mean, median, 95th percentile and max latency."

	recommendationsToolName    = "recommendations"
	recommendationsDescription = "List optimization recommendations, or apply or dismiss one by id. Recommendations are never applied automatically."
)

const defaultReportHours = 24

// OptimizeInput selects the table to optimize.
type OptimizeInput struct {
	Table string `json:"table,omitempty" jsonschema:"dynamic table name; all tables when empty"`
}

// TableOutput describes one dynamic table.
type TableOutput struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	ContentType string `json:"content_type"`
	Rows        int64  `json:"rows"`
	Analyzed    bool   `json:"analyzed"`
}

// OptimizeOutput is the optimization report.
type OptimizeOutput struct {
	Tables                []TableOutput          `json:"tables"`
	TotalItems            int                    `json:"total_items"`
	ByStrategy            map[string]int         `json:"by_strategy"`
	AverageConfidence     float64                `json:"average_confidence"`
	PendingReconciliation int                    `json:"pending_reconciliation"`
	Recommendations       []RecommendationOutput `json:"recommendations"`
	Warnings              []string               `json:"warnings,omitempty"`
}

// ReportInput scopes the performance report.
type ReportInput struct {
	Domain string `json:"domain,omitempty" jsonschema:"only report queries filtered on this domain"`
	Hours  int    `json:"hours,omitempty" jsonschema:"look-back window in hours (default: 24)"`
}

// StatOutput is one aggregate row.
type StatOutput struct {
	QueryType string  `json:"query_type"`
	Domain    string  `json:"domain,omitempty"`
	Count     int     `json:"count"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	MaxMs     float64 `json:"max_ms"`
	Partial   int     `json:"partial"`
}

// ReportOutput is the performance report.
type ReportOutput struct {
	Since string       `json:"since"`
	Stats []StatOutput `json:"stats"`
}

// RecommendationsInput lists or acts on recommendations.
type RecommendationsInput struct {
	Action string `json:"action,omitempty" jsonschema:"list (default), apply or dismiss"`
	ID     string `json:"id,omitempty" jsonschema:"recommendation id, required for apply and dismiss"`
	Status string `json:"status,omitempty" jsonschema:"when listing, only pending, applied or dismissed recommendations"`
}

// RecommendationOutput is one recommendation.
type RecommendationOutput struct {
	ID                   string  `json:"id"`
	Type                 string  `json:"type"`
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	EstimatedImprovement float64 `json:"estimated_improvement_percent"`
	Confidence           float64 `json:"confidence_score"`
	Status               string  `json:"status"`
	UpdatedAt            string  `json:"updated_at"`
}

// RecommendationsOutput is the recommendation list after any action.
type RecommendationsOutput struct {
	Recommendations []RecommendationOutput `json:"recommendations"`
	Count           int                    `json:"count"`
}

func (s *Server) handleOptimize(ctx context.Context, _ *mcp.CallToolRequest, input OptimizeInput) (*mcp.CallToolResult, OptimizeOutput, error) {
	var table *string
	if input.Table != "" {
		table = &input.Table
	}

	r, err := s.config.Engine.OptimizeStorage(ctx, table)
	if err != nil {
		if errors.As(err, new(storage.NotFoundError)) {
			return errorResult("Unknown table %q", input.Table), OptimizeOutput{}, nil
		}
		s.config.Logger.Error("failed to optimize storage", "table", input.Table, "error", err)
		return errorResult("Failed to optimize storage: %v", err), OptimizeOutput{}, nil
	}

	output := buildOptimizeOutput(r)
	result, err := jsonResult(output)
	return result, output, err
}

func buildOptimizeOutput(r *orchestrator.OptimizationReport) OptimizeOutput {
	out := OptimizeOutput{
		Tables:                make([]TableOutput, 0, len(r.Tables)),
		TotalItems:            r.Catalog.Total,
		ByStrategy:            make(map[string]int, len(r.Catalog.ByStrategy)),
		AverageConfidence:     r.Catalog.AverageConfidence,
		PendingReconciliation: r.PendingReconciliation,
		Recommendations:       recommendationOutputs(r.Recommendations),
		Warnings:              r.Warnings,
	}
	for _, t := range r.Tables {
		out.Tables = append(out.Tables, TableOutput{
			Name:        t.Name,
			Domain:      t.Domain,
			ContentType: t.ContentType,
			Rows:        t.Rows,
			Analyzed:    t.Analyzed,
		})
	}
	for s, n := range r.Catalog.ByStrategy {
		out.ByStrategy[string(s)] = n
	}
	return out
}

func (s *Server) handleReport(ctx context.Context, _ *mcp.CallToolRequest, input ReportInput) (*mcp.CallToolResult, ReportOutput, error) {
	hours := input.Hours
	if hours <= 0 {
		hours = defaultReportHours
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var domain *string
	if input.Domain != "" {
		domain = &input.Domain
	}

	stats, err := s.config.Engine.PerformanceReport(ctx, domain, since)
	if err != nil {
		s.config.Logger.Error("failed to build performance report", "error", err)
		return errorResult("Failed to build performance report: %v", err), ReportOutput{}, nil
	}

	output := ReportOutput{
		Since: since.Format(time.RFC3339),
		Stats: make([]StatOutput, 0, len(stats)),
	}
	for _, st := range stats {
		output.Stats = append(output.Stats, StatOutput{
			QueryType: string(st.QueryType),
			Domain:    st.Domain,
			Count:     st.Count,
			AvgMs:     st.AvgMs,
			P50Ms:     st.P50Ms,
			P95Ms:     st.P95Ms,
			MaxMs:     st.MaxMs,
			Partial:   st.Partial,
		})
	}
	result, err := jsonResult(output)
	return result, output, err
}

func (s *Server) handleRecommendations(ctx context.Context, _ *mcp.CallToolRequest, input RecommendationsInput) (*mcp.CallToolResult, RecommendationsOutput, error) {
	engine := s.config.Engine

	switch input.Action {
	case "", "list":
	case "apply", "dismiss":
		if input.ID == "" {
			return errorResult("id is required to %s a recommendation", input.Action), RecommendationsOutput{}, nil
		}
		status := perf.StatusApplied
		if input.Action == "dismiss" {
			status = perf.StatusDismissed
		}
		if err := engine.SetRecommendationStatus(ctx, input.ID, status); err != nil {
			return errorResult("Failed to %s recommendation %s: %v", input.Action, input.ID, err), RecommendationsOutput{}, nil
		}
		s.config.Logger.Info("recommendation updated via MCP", "id", input.ID, "status", status)
	default:
		return errorResult("Unknown action %q: use list, apply or dismiss", input.Action), RecommendationsOutput{}, nil
	}

	recs, err := engine.Recommendations(ctx, perf.RecommendationStatus(input.Status))
	if err != nil {
		s.config.Logger.Error("failed to list recommendations", "error", err)
		return errorResult("Failed to list recommendations: %v", err), RecommendationsOutput{}, nil
	}

	output := RecommendationsOutput{Recommendations: recommendationOutputs(recs)}
	output.Count = len(output.Recommendations)
	result, err := jsonResult(output)
	return result, output, err
}

func recommendationOutputs(recs []perf.Recommendation) []RecommendationOutput {
	out := make([]RecommendationOutput, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecommendationOutput{
			ID:                   r.ID,
			Type:                 string(r.Type),
			Title:                r.Title,
			Description:          r.Description,
			EstimatedImprovement: r.EstimatedImprovementPercent,
			Confidence:           r.ConfidenceScore,
			Status:               string(r.Status),
			UpdatedAt:            r.UpdatedAt.Format(time.RFC3339),
		})
	}
	return out
}
