package inmemory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/inmemory"
	"github.com/papercomputeco/strata/pkg/vector/vectortest"
)

var _ = Describe("Driver", func() {
	vectortest.DescribeDriver(func() vector.Driver {
		return inmemory.NewDriver(vectortest.Dimensions)
	})

	It("scores cosine similarity", func() {
		Expect(inmemory.Cosine([]float32{1, 0}, []float32{1, 0})).To(BeNumerically("~", 1, 1e-6))
		Expect(inmemory.Cosine([]float32{1, 0}, []float32{0, 1})).To(BeNumerically("~", 0, 1e-6))
		Expect(inmemory.Cosine([]float32{0, 0}, []float32{0, 1})).To(BeZero())
	})
})
