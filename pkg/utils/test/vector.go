package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/inmemory"
)

// MockVectorDriver is an in-memory vector driver with failure injection.
type MockVectorDriver struct {
	*inmemory.Driver

	mu sync.Mutex

	// AddErr is returned by Add while AddFailures is positive; a negative
	// AddFailures fails every Add.
	AddErr      error
	AddFailures int

	// QueryErr fails every Query.
	QueryErr error

	// QueryDelay blocks Query until it passes or ctx ends.
	QueryDelay time.Duration

	// DeleteErr fails every Delete.
	DeleteErr error

	AddCalls int
}

var _ vector.Driver = (*MockVectorDriver)(nil)

func NewMockVectorDriver(dimensions uint) *MockVectorDriver {
	return &MockVectorDriver{Driver: inmemory.NewDriver(dimensions)}
}

func (m *MockVectorDriver) Add(ctx context.Context, docs []vector.Document) error {
	m.mu.Lock()
	m.AddCalls++
	if m.AddErr != nil && m.AddFailures != 0 {
		if m.AddFailures > 0 {
			m.AddFailures--
		}
		err := m.AddErr
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	return m.Driver.Add(ctx, docs)
}

func (m *MockVectorDriver) Query(ctx context.Context, embedding []float32, topK int, opts vector.QueryOptions) ([]vector.QueryResult, error) {
	m.mu.Lock()
	err, delay := m.QueryErr, m.QueryDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return m.Driver.Query(ctx, embedding, topK, opts)
}

func (m *MockVectorDriver) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Driver.Delete(ctx, ids)
}

// FailDeletes makes every Delete return err until called with nil.
func (m *MockVectorDriver) FailDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteErr = err
}

// FailAdds makes the next n Add calls return err; n < 0 fails them all.
func (m *MockVectorDriver) FailAdds(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddErr = err
	m.AddFailures = n
}

// FailQueries makes every Query return err until called with nil.
func (m *MockVectorDriver) FailQueries(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryErr = err
}

// SlowQueries delays every Query by d.
func (m *MockVectorDriver) SlowQueries(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryDelay = d
}
