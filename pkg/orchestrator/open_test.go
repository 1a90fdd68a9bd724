package orchestrator_test

import (
	"context"
	"math/rand/v2"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/content"
	"github.com/papercomputeco/strata/pkg/orchestrator"
	"github.com/papercomputeco/strata/pkg/strategy/model"
	"github.com/papercomputeco/strata/pkg/strategy/training"
)

var _ = Describe("Open", func() {
	var (
		ctx context.Context
		dir string
		cfg *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()

		cfg = config.NewDefaultConfig()
		cfg.VectorStore.Provider = "memory"
		cfg.Embedding.Provider = "hashing"
		cfg.Embedding.Dimensions = 32
	})

	It("wires a working engine from configuration", func() {
		o, err := orchestrator.Open(ctx, cfg, dir, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(o.Close(ctx)).To(Succeed()) })

		item := content.NewItem("Short note", "a few words about ethics", content.WithDomain("philosophy"))
		res, err := o.IngestContent(ctx, item)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(content.StatusStored))

		sr, err := o.Search(ctx, "ethics", nil, 5, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(sr.Results).To(HaveLen(1))

		Expect(filepath.Join(dir, "strata.sqlite")).To(BeAnExistingFile())
	})

	It("installs a trained model from the strata directory", func() {
		samples := training.Synthetic(rand.New(rand.NewPCG(1, 1)), 30)
		m, err := model.Train(samples)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Save(filepath.Join(dir, "model.json"))).To(Succeed())

		cfg.Strategy.ModelPath = "model.json"
		cfg.Strategy.WatchModel = true
		o, err := orchestrator.Open(ctx, cfg, dir, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(o.Close(ctx)).To(Succeed()) })

		Expect(o.Classifier().Model()).NotTo(BeNil())
		Expect(o.Classifier().Model().Samples()).To(Equal(120))
	})

	It("keeps heuristic rules when the model file is missing", func() {
		cfg.Strategy.ModelPath = "missing.json"
		o, err := orchestrator.Open(ctx, cfg, dir, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(o.Close(ctx)).To(Succeed()) })

		Expect(o.Classifier().Model()).To(BeNil())
	})

	It("rejects an invalid configuration", func() {
		cfg.Events.Provider = "carrier-pigeon"
		_, err := orchestrator.Open(ctx, cfg, dir, nil)
		Expect(err).To(HaveOccurred())
	})
})
