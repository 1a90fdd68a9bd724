package recommendcmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	recommendcmder "github.com/papercomputeco/strata/cmd/strata/recommendations"
	"github.com/papercomputeco/strata/pkg/perf"
)

var _ = Describe("NewRecommendationsCmd", func() {
	It("has list, apply and dismiss subcommands", func() {
		cmd := recommendcmder.NewRecommendationsCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ConsistOf("list", "apply", "dismiss"))
	})

	It("requires an id to apply", func() {
		cmd := recommendcmder.NewRecommendationsCmd()
		cmd.SetArgs([]string{"apply"})
		Expect(cmd.Execute()).NotTo(Succeed())
	})
})

var _ = Describe("Markdown", func() {
	It("renders every recommendation", func() {
		md := recommendcmder.Markdown([]perf.Recommendation{{
			ID:                          "r1",
			Type:                        perf.RecommendIndex,
			Title:                       "Add an index for slow search queries in philosophy",
			Description:                 "p95 above 200ms for 3 windows",
			EstimatedImprovementPercent: 40,
			ConfidenceScore:             0.8,
			Status:                      perf.StatusPending,
		}})

		Expect(md).To(ContainSubstring("## Add an index for slow search queries in philosophy"))
		Expect(md).To(ContainSubstring("`r1`"))
		Expect(md).To(ContainSubstring("confidence 0.80"))
		Expect(md).To(ContainSubstring("est. improvement 40%"))
		Expect(md).To(ContainSubstring("p95 above 200ms"))
	})

	It("notes an empty list", func() {
		Expect(recommendcmder.Markdown(nil)).To(ContainSubstring("No recommendations"))
	})
})
