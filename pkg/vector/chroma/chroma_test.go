package chroma_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	strataLogger "github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/chroma"
	"github.com/papercomputeco/strata/pkg/vector/inmemory"
	"github.com/papercomputeco/strata/pkg/vector/vectortest"
)

// fakeChroma serves the subset of the Chroma v2 API the driver uses, backed
// by the in-memory driver.
func fakeChroma(dimensions uint) *httptest.Server {
	store := inmemory.NewDriver(dimensions)
	const prefix = "/api/v2/tenants/default_tenant/databases/default_database/collections"

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		path := strings.TrimPrefix(r.URL.Path, prefix)

		switch {
		case r.Method == http.MethodGet:
			http.Error(w, "not found", http.StatusNotFound)

		case path == "":
			writeJSON(w, map[string]string{"id": "col-1", "name": "strata_content"})

		case strings.HasSuffix(path, "/upsert"):
			var req struct {
				IDs        []string            `json:"ids"`
				Embeddings [][]float32         `json:"embeddings"`
				Metadatas  []map[string]string `json:"metadatas"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			docs := make([]vector.Document, len(req.IDs))
			for i, id := range req.IDs {
				docs[i] = vector.Document{ID: id, Embedding: req.Embeddings[i], Payload: req.Metadatas[i]}
			}
			if err := store.Add(ctx, docs); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, map[string]any{})

		case strings.HasSuffix(path, "/query"):
			var req struct {
				QueryEmbeddings [][]float32    `json:"query_embeddings"`
				NResults        int            `json:"n_results"`
				Where           map[string]any `json:"where"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			filter := map[string]string{}
			if and, ok := req.Where["$and"].([]any); ok {
				for _, c := range and {
					for k, v := range c.(map[string]any) {
						filter[k] = v.(string)
					}
				}
			} else {
				for k, v := range req.Where {
					filter[k] = v.(string)
				}
			}
			results, _ := store.Query(ctx, req.QueryEmbeddings[0], req.NResults, vector.QueryOptions{Filter: filter})
			ids, dists, metas, embs := []string{}, []float32{}, []vector.Payload{}, [][]float32{}
			for _, res := range results {
				ids = append(ids, res.ID)
				dists = append(dists, 1-res.Score)
				metas = append(metas, res.Payload)
				embs = append(embs, res.Embedding)
			}
			writeJSON(w, map[string]any{
				"ids": [][]string{ids}, "distances": [][]float32{dists},
				"metadatas": [][]vector.Payload{metas}, "embeddings": [][][]float32{embs},
			})

		case strings.HasSuffix(path, "/get"):
			var req struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			docs, _ := store.Get(ctx, req.IDs)
			ids, metas, embs := []string{}, []vector.Payload{}, [][]float32{}
			for _, d := range docs {
				ids = append(ids, d.ID)
				metas = append(metas, d.Payload)
				embs = append(embs, d.Embedding)
			}
			writeJSON(w, map[string]any{"ids": ids, "metadatas": metas, "embeddings": embs})

		case strings.HasSuffix(path, "/delete"):
			var req struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = store.Delete(ctx, req.IDs)
			writeJSON(w, map[string]any{})

		default:
			http.Error(w, "unexpected "+r.URL.Path, http.StatusNotFound)
		}
	}))
}

var _ = Describe("Driver", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = strataLogger.Nop()
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(chroma.Config{URL: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
		})

		It("should succeed after retrying when Chroma becomes available", func() {
			var attempts atomic.Int32

			// Each attempt issues a GET for the collection and then a POST to
			// create it. Fail the first two attempts.
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) <= 4 {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"id":   "test-collection-id",
					"name": "strata_content",
				})
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    5,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(attempts.Load()).To(BeNumerically(">=", int32(5)))
		})

		It("should return an error after exhausting all retries", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    3,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, logger)
			Expect(err).To(MatchError(vector.ErrConnection))
			Expect(err.Error()).To(ContainSubstring("after 3 attempts"))
		})
	})

	Describe("contract", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = fakeChroma(vectortest.Dimensions)
		})

		AfterEach(func() {
			server.Close()
		})

		vectortest.DescribeDriver(func() vector.Driver {
			d, err := chroma.NewDriver(chroma.Config{
				URL:        server.URL,
				Dimensions: vectortest.Dimensions,
				MaxRetries: 1,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			return d
		})
	})

	It("reports server errors", func() {
		server := fakeChroma(vectortest.Dimensions)
		defer server.Close()

		d, err := chroma.NewDriver(chroma.Config{URL: server.URL}, logger)
		Expect(err).NotTo(HaveOccurred())

		err = d.Add(context.Background(), []vector.Document{{ID: "x", Embedding: []float32{1}}})
		Expect(err).To(MatchError(ContainSubstring("status 400")))
	})
})
