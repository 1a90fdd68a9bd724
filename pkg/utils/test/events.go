package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/strata/pkg/eventstream"
)

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []eventstream.ItemEvent
}

var _ eventstream.Publisher = (*RecordingPublisher)(nil)

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishItem(_ context.Context, event *eventstream.ItemEvent) error {
	if event == nil {
		return eventstream.ErrNilItemEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

// Events returns a copy of the published events.
func (p *RecordingPublisher) Events() []eventstream.ItemEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]eventstream.ItemEvent(nil), p.events...)
}

func (p *RecordingPublisher) Close() error {
	return nil
}
