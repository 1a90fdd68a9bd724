package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/api/mcp"
	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/ledger"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/orchestrator"
	"github.com/papercomputeco/strata/pkg/perf"
	"github.com/papercomputeco/strata/pkg/query"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/strategy"
	"github.com/papercomputeco/strata/pkg/writer"
)

// fakeEngine records calls and returns canned results.
type fakeEngine struct {
	items      []content.Item
	searchErr  error
	searchArgs struct {
		q         string
		filters   map[string]string
		limit     int
		threshold float64
	}
	optimizeTable *string
	reportDomain  *string
	reportSince   time.Time
	recs          []perf.Recommendation
	statusSet     map[string]perf.RecommendationStatus
}

func (f *fakeEngine) AnalyzeAndDecide(_ context.Context, item content.Item) (orchestrator.Analysis, error) {
	f.items = append(f.items, item)
	return orchestrator.Analysis{
		Item:     item,
		Features: features.FeatureVector{SizeBytes: item.SizeBytes, DomainTag: item.DomainTag},
		Decision: strategy.Decision{
			Strategy:   strategy.RelationalFull,
			Confidence: 0.9,
			Reasons:    []string{"small content"},
			TableName:  "content_general_small_document",
		},
	}, nil
}

func (f *fakeEngine) IngestContent(_ context.Context, item content.Item) (writer.WriteResult, error) {
	f.items = append(f.items, item)
	if item.Title == "broken" {
		return writer.WriteResult{}, errors.New("relational store unavailable")
	}
	return writer.WriteResult{
		ItemID:     item.ID,
		Strategy:   strategy.Hybrid,
		TableName:  "content_philosophy_book",
		Status:     content.StatusDegraded,
		Outcome:    writer.OutcomePartialFailure,
		Relational: true,
		Missing:    []ledger.Side{ledger.SideVector},
	}, nil
}

func (f *fakeEngine) Search(_ context.Context, q string, filters map[string]string, limit int, threshold float64) (*query.SearchResult, error) {
	f.searchArgs.q = q
	f.searchArgs.filters = filters
	f.searchArgs.limit = limit
	f.searchArgs.threshold = threshold
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &query.SearchResult{
		Results: []query.FusedResult{{
			ID:          "abc",
			Title:       "Being and Time",
			Score:       0.8,
			VectorScore: 0.9,
			TextScore:   0.5,
			Sources:     []query.Backend{query.BackendRelational, query.BackendVector},
			CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		}},
	}, nil
}

func (f *fakeEngine) OptimizeStorage(_ context.Context, table *string) (*orchestrator.OptimizationReport, error) {
	f.optimizeTable = table
	if table != nil && *table == "missing" {
		return nil, storage.NotFoundError{ID: "missing"}
	}
	r := &orchestrator.OptimizationReport{
		GeneratedAt:           time.Now(),
		Tables:                []orchestrator.TableReport{{Name: "content_philosophy_book", Domain: "philosophy", ContentType: "book", Rows: 3, Analyzed: true}},
		PendingReconciliation: 2,
		Recommendations:       f.recs,
	}
	r.Catalog.Total = 3
	r.Catalog.ByStrategy = map[strategy.Strategy]int{strategy.Hybrid: 3}
	return r, nil
}

func (f *fakeEngine) PerformanceReport(_ context.Context, domain *string, since time.Time) ([]perf.AggregateStat, error) {
	f.reportDomain = domain
	f.reportSince = since
	return []perf.AggregateStat{{QueryType: perf.QuerySearch, Domain: "philosophy", Count: 4, AvgMs: 12, P50Ms: 10, P95Ms: 30, MaxMs: 31}}, nil
}

func (f *fakeEngine) Recommendations(_ context.Context, status perf.RecommendationStatus) ([]perf.Recommendation, error) {
	var out []perf.Recommendation
	for _, r := range f.recs {
		if s, ok := f.statusSet[r.ID]; ok {
			r.Status = s
		}
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeEngine) SetRecommendationStatus(_ context.Context, id string, status perf.RecommendationStatus) error {
	for _, r := range f.recs {
		if r.ID == id {
			f.statusSet[id] = status
			return nil
		}
	}
	return storage.NotFoundError{ID: id}
}

func textOf(res *sdk.CallToolResult) string {
	ExpectWithOffset(1, res.Content).NotTo(BeEmpty())
	tc, ok := res.Content[0].(*sdk.TextContent)
	ExpectWithOffset(1, ok).To(BeTrue())
	return tc.Text
}

func decode(res *sdk.CallToolResult, v any) {
	ExpectWithOffset(1, res.IsError).To(BeFalse(), textOf(res))
	ExpectWithOffset(1, json.Unmarshal([]byte(textOf(res)), v)).To(Succeed())
}

var _ = Describe("MCP Server", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		engine  *fakeEngine
		server  *mcp.Server
		session *sdk.ClientSession
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		engine = &fakeEngine{
			statusSet: map[string]perf.RecommendationStatus{},
			recs: []perf.Recommendation{{
				ID:                          "rec-1",
				Key:                         "retrain:classifier",
				Type:                        perf.RecommendRetrain,
				Title:                       "Consider retraining the storage classifier with more data",
				EstimatedImprovementPercent: 10,
				ConfidenceScore:             0.7,
				Status:                      perf.StatusPending,
				UpdatedAt:                   time.Now(),
			}},
		}

		var err error
		server, err = mcp.NewServer(mcp.Config{Engine: engine, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		clientT, serverT := sdk.NewInMemoryTransports()
		_, err = server.Connect(ctx, serverT)
		Expect(err).NotTo(HaveOccurred())

		client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "v0"}, nil)
		session, err = client.Connect(ctx, clientT, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = session.Close()
		cancel()
	})

	call := func(name string, args map[string]any) *sdk.CallToolResult {
		res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return res
	}

	Describe("NewServer", func() {
		It("returns an error when engine is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("engine is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Engine: engine})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("allows a noop server without dependencies", func() {
			s, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(s).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("registers every tool", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			var names []string
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf(
				"analyze_content", "ingest_content", "hybrid_search",
				"optimize_storage", "query_performance_report", "recommendations",
			))
		})
	})

	Describe("analyze_content", func() {
		It("returns the decision without storing", func() {
			var out mcp.AnalyzeOutput
			decode(call("analyze_content", map[string]any{
				"title": "Note", "content": "short", "domain": "philosophy",
			}), &out)

			Expect(out.ItemID).To(Equal(engine.items[0].ID))
			Expect(out.Domain).To(Equal("philosophy"))
			Expect(out.Decision.Strategy).To(Equal(strategy.RelationalFull))
			Expect(out.Decision.Reasons).To(ContainElement("small content"))
		})

		It("rejects an empty document", func() {
			res := call("analyze_content", map[string]any{})
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("title or content is required"))
			Expect(engine.items).To(BeEmpty())
		})
	})

	Describe("ingest_content", func() {
		It("reports a degraded write with the missing store", func() {
			var out mcp.IngestOutput
			decode(call("ingest_content", map[string]any{
				"title": "Ethics", "content": "virtue", "author": "Aristotle",
			}), &out)

			Expect(engine.items[0].Author).To(Equal("Aristotle"))
			Expect(out.Status).To(Equal("degraded"))
			Expect(out.Outcome).To(Equal("partial_failure"))
			Expect(out.Relational).To(BeTrue())
			Expect(out.Vector).To(BeFalse())
			Expect(out.Missing).To(ConsistOf("vector"))
		})

		It("returns an error result when ingestion fails", func() {
			res := call("ingest_content", map[string]any{"title": "broken", "content": "x"})
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("relational store unavailable"))
		})
	})

	Describe("hybrid_search", func() {
		It("passes arguments through and formats results", func() {
			var out mcp.SearchOutput
			decode(call("hybrid_search", map[string]any{
				"query":           "being",
				"filters":         map[string]any{"domain": "philosophy"},
				"limit":           5,
				"score_threshold": 0.3,
			}), &out)

			Expect(engine.searchArgs.q).To(Equal("being"))
			Expect(engine.searchArgs.filters).To(HaveKeyWithValue("domain", "philosophy"))
			Expect(engine.searchArgs.limit).To(Equal(5))
			Expect(engine.searchArgs.threshold).To(BeNumerically("~", 0.3))

			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].Sources).To(ConsistOf("relational", "vector"))
			Expect(out.Results[0].CreatedAt).To(Equal("2026-01-02T03:04:05Z"))
		})

		It("rejects a threshold outside [0, 1]", func() {
			res := call("hybrid_search", map[string]any{"query": "x", "score_threshold": 1.5})
			Expect(res.IsError).To(BeTrue())
			Expect(engine.searchArgs.q).To(BeEmpty())
		})

		It("reports unknown filters as invalid input", func() {
			engine.searchErr = query.ErrUnknownFilter
			res := call("hybrid_search", map[string]any{"query": "x", "filters": map[string]any{"colour": "red"}})
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("Invalid filters"))
		})
	})

	Describe("optimize_storage", func() {
		It("optimizes every table when none is named", func() {
			var out mcp.OptimizeOutput
			decode(call("optimize_storage", map[string]any{}), &out)

			Expect(engine.optimizeTable).To(BeNil())
			Expect(out.Tables).To(HaveLen(1))
			Expect(out.TotalItems).To(Equal(3))
			Expect(out.ByStrategy).To(HaveKeyWithValue("hybrid", 3))
			Expect(out.PendingReconciliation).To(Equal(2))
			Expect(out.Recommendations).To(HaveLen(1))
		})

		It("reports an unknown table", func() {
			res := call("optimize_storage", map[string]any{"table": "missing"})
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring(`Unknown table "missing"`))
		})
	})

	Describe("query_performance_report", func() {
		It("defaults to the last 24 hours", func() {
			var out mcp.ReportOutput
			decode(call("query_performance_report", map[string]any{}), &out)

			Expect(engine.reportDomain).To(BeNil())
			Expect(engine.reportSince).To(BeTemporally("~", time.Now().Add(-24*time.Hour), time.Minute))
			Expect(out.Stats).To(HaveLen(1))
			Expect(out.Stats[0].P95Ms).To(Equal(30.0))
		})

		It("scopes to a domain and window", func() {
			call("query_performance_report", map[string]any{"domain": "philosophy", "hours": 2})
			Expect(engine.reportDomain).NotTo(BeNil())
			Expect(*engine.reportDomain).To(Equal("philosophy"))
			Expect(engine.reportSince).To(BeTemporally("~", time.Now().Add(-2*time.Hour), time.Minute))
		})
	})

	Describe("recommendations", func() {
		It("lists recommendations", func() {
			var out mcp.RecommendationsOutput
			decode(call("recommendations", map[string]any{}), &out)
			Expect(out.Count).To(Equal(1))
			Expect(out.Recommendations[0].Status).To(Equal("pending"))
		})

		It("applies a recommendation", func() {
			var out mcp.RecommendationsOutput
			decode(call("recommendations", map[string]any{"action": "apply", "id": "rec-1"}), &out)
			Expect(engine.statusSet).To(HaveKeyWithValue("rec-1", perf.StatusApplied))
			Expect(out.Recommendations[0].Status).To(Equal("applied"))
		})

		It("filters by status", func() {
			call("recommendations", map[string]any{"action": "dismiss", "id": "rec-1"})
			var out mcp.RecommendationsOutput
			decode(call("recommendations", map[string]any{"status": "pending"}), &out)
			Expect(out.Count).To(BeZero())
		})

		It("requires an id to act", func() {
			res := call("recommendations", map[string]any{"action": "apply"})
			Expect(res.IsError).To(BeTrue())
		})

		It("rejects unknown actions", func() {
			res := call("recommendations", map[string]any{"action": "delete", "id": "rec-1"})
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("Unknown action"))
		})

		It("reports a missing recommendation", func() {
			res := call("recommendations", map[string]any{"action": "dismiss", "id": "nope"})
			Expect(res.IsError).To(BeTrue())
		})
	})
})
