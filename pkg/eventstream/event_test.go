package eventstream_test

import (
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals ItemEvent with expected top-level keys", func() {
		event := eventstream.NewItemEvent(eventstream.EventTypeItemDegraded)
		event.ItemID = "item-1"
		event.Strategy = "hybrid"
		event.TableName = "philosophy_book_0a1b2c3d"
		event.Status = "degraded"
		event.Missing = []string{"vector"}
		event.Reason = "vector store unavailable"

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		for _, key := range []string{
			"schema_version", "event_type", "event_id", "emitted_at",
			"item_id", "strategy", "table_name", "status", "missing", "reason",
		} {
			Expect(got).To(HaveKey(key))
		}
		Expect(got).NotTo(HaveKey("title"))
	})

	It("stamps unique ids", func() {
		a := eventstream.NewItemEvent(eventstream.EventTypeItemFailed)
		b := eventstream.NewItemEvent(eventstream.EventTypeItemFailed)
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(strings.HasPrefix(a.EventID, "evt_")).To(BeTrue())
		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EmittedAt.IsZero()).To(BeFalse())
	})

	It("defines stable event constants", func() {
		Expect(eventstream.EventTypeItemDegraded).To(Equal("strata.item.degraded"))
		Expect(eventstream.EventTypeItemFailed).To(Equal("strata.item.failed"))
	})

	It("provides ErrNilItemEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilItemEvent).To(MatchError("nil item event"))
	})
})
