package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/ledger"
	"github.com/papercomputeco/strata/pkg/strategy"
)

var (
	// ErrPartialWriteFailure means one side of a hybrid write failed. The
	// item is kept degraded and recorded for reconciliation.
	ErrPartialWriteFailure = errors.New("partial write failure")

	// ErrDualWriteFailure means both sides of a hybrid write failed.
	ErrDualWriteFailure = errors.New("dual write failure")

	// ErrWriteFailed means the only store a strategy targets failed.
	ErrWriteFailed = errors.New("write failed")

	// ErrStaleRecord means a record left by an earlier strategy of the same
	// item could not be removed.
	ErrStaleRecord = errors.New("stale record")

	// ErrMissingEmbedding is returned before any I/O when a vector strategy
	// is written without an embedding.
	ErrMissingEmbedding = errors.New("vector strategy requires an embedding")
)

// Outcome is the explicit result of a write.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailure        Outcome = "failure"
)

// PartialWriteError names the sides a hybrid write could not reach.
type PartialWriteError struct {
	Missing []ledger.Side
	Err     error
}

func (e *PartialWriteError) Error() string {
	sides := make([]string, len(e.Missing))
	for i, s := range e.Missing {
		sides[i] = string(s)
	}
	return fmt.Sprintf("%s: %s store missing: %v", ErrPartialWriteFailure, strings.Join(sides, ", "), e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrPartialWriteFailure, e.Err}
}

// StaleRecordError names the sides that still hold a record written under
// an earlier strategy.
type StaleRecordError struct {
	Stale []ledger.Side
	Err   error
}

func (e *StaleRecordError) Error() string {
	sides := make([]string, len(e.Stale))
	for i, s := range e.Stale {
		sides[i] = string(s)
	}
	return fmt.Sprintf("%s: stale %s record: %v", ErrStaleRecord, strings.Join(sides, ", "), e.Err)
}

func (e *StaleRecordError) Unwrap() []error {
	return []error{ErrStaleRecord, e.Err}
}

// WriteResult reports what a write achieved.
type WriteResult struct {
	ItemID       string            `json:"item_id"`
	Strategy     strategy.Strategy `json:"strategy"`
	TableName    string            `json:"table_name,omitempty"`
	TableCreated bool              `json:"table_created,omitempty"`
	Status       content.Status    `json:"status"`
	Outcome      Outcome           `json:"outcome"`
	Relational   bool              `json:"relational"`
	Vector       bool              `json:"vector"`
	Missing      []ledger.Side     `json:"missing,omitempty"`

	// Stale names sides still holding a record from an earlier strategy
	// that could not be removed.
	Stale []ledger.Side `json:"stale,omitempty"`

	// Failure is a *PartialWriteError for partial outcomes and the cause for
	// failed ones.
	Failure error `json:"-"`
}

// Reason is the failure text, or empty when the write succeeded.
func (r WriteResult) Reason() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Error()
}
