package perf

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/strata/pkg/logger"
)

const (
	defaultBufferSize    = 1024
	defaultFlushInterval = time.Second
	maxBatch             = 256
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Store         *Store
	BufferSize    int
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Tracker buffers entries and writes them from one background goroutine.
// Record never blocks the query path: when the buffer is full the entry is
// dropped and counted.
type Tracker struct {
	store    *Store
	entries  chan Entry
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
	written atomic.Int64
}

// NewTracker starts a Tracker. Close must be called to flush it.
func NewTracker(c TrackerConfig) *Tracker {
	t := &Tracker{
		store:    c.Store,
		interval: c.FlushInterval,
		logger:   c.Logger,
		done:     make(chan struct{}),
	}
	size := c.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	if t.interval <= 0 {
		t.interval = defaultFlushInterval
	}
	if t.logger == nil {
		t.logger = logger.Nop()
	}
	t.entries = make(chan Entry, size)

	go t.run()
	return t
}

// Record queues e. It fills in the id and timestamp when they are empty.
func (t *Tracker) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.dropped.Add(1)
		return
	}
	select {
	case t.entries <- e:
	default:
		if t.dropped.Add(1)%100 == 1 {
			t.logger.Warn("performance buffer full, dropping entries", "dropped", t.dropped.Load())
		}
	}
}

// Dropped is the number of entries that never reached the store.
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// Written is the number of entries stored so far.
func (t *Tracker) Written() int64 {
	return t.written.Load()
}

// Close stops accepting entries and waits until the buffer is written or
// ctx ends.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.entries)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	batch := make([]Entry, 0, maxBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := t.store.Insert(context.Background(), batch); err != nil {
			t.dropped.Add(int64(len(batch)))
			t.logger.Warn("could not write performance entries", "count", len(batch), "error", err)
		} else {
			t.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-t.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
