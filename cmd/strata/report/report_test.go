package reportcmder_test

import (
	"bytes"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	reportcmder "github.com/papercomputeco/strata/cmd/strata/report"
	"github.com/papercomputeco/strata/pkg/perf"
)

var _ = Describe("Print", func() {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	It("prints one row per group", func() {
		var buf bytes.Buffer
		reportcmder.Print(&buf, since, []perf.AggregateStat{
			{QueryType: perf.QuerySearch, Domain: "philosophy", Count: 12, AvgMs: 20.5, P50Ms: 18, P95Ms: 40, MaxMs: 52, Partial: 1},
			{QueryType: perf.QueryFilter, Count: 3, AvgMs: 2, P50Ms: 2, P95Ms: 3, MaxMs: 3},
		})

		out := buf.String()
		Expect(out).To(ContainSubstring("2026-03-01T12:00:00Z"))
		Expect(out).To(MatchRegexp(`search\s+philosophy\s+12\s+20\.5\s+18\.0\s+40\.0\s+52\.0\s+1`))
		Expect(out).To(MatchRegexp(`filter\s+-\s+3`))
	})

	It("says when nothing was recorded", func() {
		var buf bytes.Buffer
		reportcmder.Print(&buf, since, nil)
		Expect(buf.String()).To(ContainSubstring("No queries recorded."))
	})
})
