package hashing_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/embeddings/hashing"
	"github.com/papercomputeco/strata/pkg/vector/inmemory"
)

var _ = Describe("Embedder", func() {
	var (
		ctx context.Context
		e   *hashing.Embedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		e = hashing.NewEmbedder(64)
	})

	It("produces vectors of the configured size", func() {
		v, err := e.Embed(ctx, "the nature of consciousness")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(HaveLen(64))
	})

	It("defaults the size", func() {
		v, err := hashing.NewEmbedder(0).Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(HaveLen(hashing.DefaultDimensions))
	})

	It("is deterministic and case-insensitive", func() {
		a, _ := e.Embed(ctx, "Consciousness and Mind")
		b, _ := e.Embed(ctx, "consciousness and mind")
		Expect(a).To(Equal(b))
	})

	It("returns unit vectors", func() {
		v, _ := e.Embed(ctx, "a b c d e f g")
		Expect(inmemory.Cosine(v, v)).To(BeNumerically("~", 1, 1e-5))
	})

	It("places texts with shared words closer together", func() {
		q, _ := e.Embed(ctx, "consciousness")
		near, _ := e.Embed(ctx, "consciousness and the philosophy of mind consciousness")
		far, _ := e.Embed(ctx, "tectonic plates drift slowly under oceans")
		Expect(inmemory.Cosine(q, near)).To(BeNumerically(">", inmemory.Cosine(q, far)))
	})

	It("maps text without words to a fixed vector", func() {
		v, err := e.Embed(ctx, "  ... !!")
		Expect(err).NotTo(HaveOccurred())
		Expect(v[0]).To(Equal(float32(1)))
	})

	It("honours cancellation", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Embed(cctx, "x")
		Expect(err).To(MatchError(context.Canceled))
	})
})
