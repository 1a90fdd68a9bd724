// Package eventstream publishes item lifecycle events for consumers outside
// the process, such as a reconciliation worker.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeItemDegraded is emitted when an item was written to fewer
	// stores than its strategy requires.
	EventTypeItemDegraded = "strata.item.degraded"

	// EventTypeItemFailed is emitted when no store accepted an item.
	EventTypeItemFailed = "strata.item.failed"
)

// ItemEvent is a transport-neutral event payload for an item that needs
// reconciliation.
type ItemEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ItemID    string   `json:"item_id"`
	Title     string   `json:"title,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	Strategy  string   `json:"strategy"`
	TableName string   `json:"table_name,omitempty"`
	Status    string   `json:"status"`
	Missing   []string `json:"missing,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// NewItemEvent stamps an event of eventType with a fresh id and time.
func NewItemEvent(eventType string) *ItemEvent {
	return &ItemEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}
