// Package perf records query performance and turns it into optimisation
// recommendations for an operator.
package perf

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// QueryType classifies a tracked query.
type QueryType string

const (
	QuerySearch    QueryType = "search"
	QueryFilter    QueryType = "filter"
	QueryAggregate QueryType = "aggregate"
)

// Entry is one tracked query execution.
type Entry struct {
	ID           string    `json:"id"`
	QueryHash    string    `json:"query_hash"`
	QueryType    QueryType `json:"query_type"`
	Domain       string    `json:"domain,omitempty"`
	ExecutionMs  float64   `json:"execution_ms"`
	RowsReturned int       `json:"rows_returned"`
	Strategy     string    `json:"strategy,omitempty"`
	Partial      bool      `json:"partial,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// HashQuery identifies a query independent of case and spacing.
func HashQuery(q string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(q)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:8])
}

// GroupBy selects the aggregation keys.
type GroupBy struct {
	Type   bool
	Domain bool
}

// AggregateStat summarises the entries of one group. Keys not grouped on
// are empty.
type AggregateStat struct {
	QueryType QueryType `json:"query_type,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Count     int       `json:"count"`
	AvgMs     float64   `json:"avg_ms"`
	P50Ms     float64   `json:"p50_ms"`
	P95Ms     float64   `json:"p95_ms"`
	MaxMs     float64   `json:"max_ms"`
	AvgRows   float64   `json:"avg_rows"`
	Partial   int       `json:"partial"`
}
