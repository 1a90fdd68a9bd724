// Package mcp provides an MCP (Model Context Protocol) server exposing the
// strata storage engine as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/orchestrator"
	"github.com/papercomputeco/strata/pkg/perf"
	"github.com/papercomputeco/strata/pkg/query"
	"github.com/papercomputeco/strata/pkg/utils"
	"github.com/papercomputeco/strata/pkg/writer"
)

// Engine is the part of the orchestrator the tools call.
type Engine interface {
	AnalyzeAndDecide(ctx context.Context, item content.Item) (orchestrator.Analysis, error)
	IngestContent(ctx context.Context, item content.Item) (writer.WriteResult, error)
	Search(ctx context.Context, q string, filters map[string]string, limit int, scoreThreshold float64) (*query.SearchResult, error)
	OptimizeStorage(ctx context.Context, table *string) (*orchestrator.OptimizationReport, error)
	PerformanceReport(ctx context.Context, domain *string, since time.Time) ([]perf.AggregateStat, error)
	Recommendations(ctx context.Context, status perf.RecommendationStatus) ([]perf.Recommendation, error)
	SetRecommendationStatus(ctx context.Context, id string, status perf.RecommendationStatus) error
}

var _ Engine = (*orchestrator.Orchestrator)(nil)

type Config struct {
	// Engine serves every tool
	Engine Engine

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the storage tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "strata",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        analyzeToolName,
		Description: analyzeDescription,
	}, s.handleAnalyze)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        ingestToolName,
		Description: ingestDescription,
	}, s.handleIngest)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchToolName,
		Description: searchDescription,
	}, s.handleSearch)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        optimizeToolName,
		Description: optimizeDescription,
	}, s.handleOptimize)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        reportToolName,
		Description: reportDescription,
	}, s.handleReport)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        recommendationsToolName,
		Description: recommendationsDescription,
	}, s.handleRecommendations)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves the MCP server over stdio until ctx is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves the MCP server over t. It is used to attach in-process
// clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}
