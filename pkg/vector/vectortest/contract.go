// Package vectortest holds the behaviour every vector.Driver must share,
// written as ginkgo specs drivers register from their own suites.
package vectortest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/vector"
)

// Dimensions is the embedding size the contract uses.
const Dimensions = 4

// Fixtures are four unit-ish directions plus payloads to filter on.
var Fixtures = []vector.Document{
	{ID: "east", Embedding: []float32{1, 0, 0, 0}, Payload: vector.Payload{vector.PayloadDomain: "science", vector.PayloadTitle: "East"}},
	{ID: "north", Embedding: []float32{0, 1, 0, 0}, Payload: vector.Payload{vector.PayloadDomain: "history", vector.PayloadTitle: "North"}},
	{ID: "north-east", Embedding: []float32{0.7, 0.7, 0, 0}, Payload: vector.Payload{vector.PayloadDomain: "science", vector.PayloadTitle: "North East"}},
	{ID: "up", Embedding: []float32{0, 0, 1, 0}, Payload: vector.Payload{vector.PayloadDomain: "history", vector.PayloadTitle: "Up"}},
}

// DescribeDriver registers the shared driver specs. newDriver must return a
// fresh, empty driver with Dimensions dimensions.
func DescribeDriver(newDriver func() vector.Driver) {
	var (
		ctx    context.Context
		driver vector.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
		Expect(driver.Add(ctx, Fixtures)).To(Succeed())
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	It("accepts an empty batch", func() {
		Expect(driver.Add(ctx, nil)).To(Succeed())
	})

	It("returns the nearest documents first", func() {
		results, err := driver.Query(ctx, []float32{1, 0.1, 0, 0}, 2, vector.QueryOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("east"))
		Expect(results[1].ID).To(Equal("north-east"))
		Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
		Expect(results[0].Score).To(BeNumerically("<=", 1.0001))
		Expect(results[0].Payload).To(HaveKeyWithValue(vector.PayloadTitle, "East"))
	})

	It("defaults topK to 10", func() {
		results, err := driver.Query(ctx, []float32{1, 1, 1, 1}, 0, vector.QueryOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(len(Fixtures)))
	})

	It("filters on payload", func() {
		results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 10, vector.QueryOptions{
			Filter: map[string]string{vector.PayloadDomain: "history"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		for _, r := range results {
			Expect(r.Payload[vector.PayloadDomain]).To(Equal("history"))
		}
	})

	It("drops results below the score threshold", func() {
		results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 10, vector.QueryOptions{ScoreThreshold: 0.5})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
	})

	It("replaces documents with the same id", func() {
		Expect(driver.Add(ctx, []vector.Document{{
			ID:        "east",
			Embedding: []float32{0, 0, 0, 1},
			Payload:   vector.Payload{vector.PayloadTitle: "Moved"},
		}})).To(Succeed())

		docs, err := driver.Get(ctx, []string{"east"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Payload).To(HaveKeyWithValue(vector.PayloadTitle, "Moved"))
		Expect(docs[0].Embedding[3]).To(BeNumerically("~", 1, 0.001))

		results, err := driver.Query(ctx, []float32{0, 0, 0, 1}, 1, vector.QueryOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].ID).To(Equal("east"))
	})

	It("gets documents and skips unknown ids", func() {
		docs, err := driver.Get(ctx, []string{"north", "missing"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].ID).To(Equal("north"))
		Expect(docs[0].Embedding).To(HaveLen(Dimensions))
	})

	It("deletes documents", func() {
		Expect(driver.Delete(ctx, []string{"east", "missing"})).To(Succeed())

		docs, err := driver.Get(ctx, []string{"east"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(BeEmpty())

		results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 10, vector.QueryOptions{})
		Expect(err).NotTo(HaveOccurred())
		for _, r := range results {
			Expect(r.ID).NotTo(Equal("east"))
		}
	})

	It("rejects embeddings of the wrong size", func() {
		err := driver.Add(ctx, []vector.Document{{ID: "bad", Embedding: []float32{1, 2}}})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})
}
