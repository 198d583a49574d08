package performance_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/infrastructure/provider"
	"github.com/codecompass/codecompass/infrastructure/qdrant"
)

const (
	// qdrantURL is the endpoint of the local Qdrant instance.
	qdrantURL = "http://localhost:6333"

	// perfCollection keeps performance test points out of any real
	// collection on the same instance.
	perfCollection = "codecompass-perf"

	// embeddingDimension is the output dimension of st-codesearch-distilroberta-base.
	embeddingDimension = 768
)

// testStore connects to the local Qdrant instance and purges leftover
// points from earlier runs. Skips the test when Qdrant is unreachable.
func testStore(t *testing.T) *qdrant.Client {
	t.Helper()

	ctx := context.Background()
	store := qdrant.NewClient(qdrantURL, perfCollection, embeddingDimension)
	if err := store.HealthCheck(ctx); err != nil {
		t.Skipf("cannot reach Qdrant at %s: %v (start with: docker run -p 6333:6333 qdrant/qdrant)", qdrantURL, err)
	}
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("initialize collection %q: %v", perfCollection, err)
	}
	if err := purgeAll(ctx, store); err != nil {
		t.Fatalf("purge collection: %v", err)
	}

	t.Cleanup(func() { _ = purgeAll(context.Background(), store) })

	return store
}

// purgeAll deletes every point in the performance collection so each
// run starts clean.
func purgeAll(ctx context.Context, store *qdrant.Client) error {
	for {
		page, err := store.Scroll(ctx, point.NewFilter(), 500, "")
		if err != nil {
			return err
		}
		points := page.Points()
		if len(points) == 0 {
			return nil
		}
		ids := make([]string, len(points))
		for i, p := range points {
			ids[i] = p.ID()
		}
		if err := store.Delete(ctx, ids); err != nil {
			return err
		}
	}
}

// testEmbedder creates a HugotEmbedding provider. Skips if the model
// is not compiled in (requires -tags "ORT embed_model").
func testEmbedder(t *testing.T) *provider.HugotEmbedding {
	t.Helper()
	emb := provider.NewHugotEmbedding(t.TempDir())
	if !emb.Available() {
		t.Skip("skipping: requires -tags \"ORT embed_model\" for built-in ONNX model")
	}
	t.Cleanup(func() { _ = emb.Close() })
	return emb
}

// embedAll pushes texts through the local model in capacity-sized
// batches, the same way the indexing pipeline feeds it.
func embedAll(ctx context.Context, embedder *provider.HugotEmbedding, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += embedder.Capacity() {
		end := min(start+embedder.Capacity(), len(texts))
		resp, err := embedder.Embed(ctx, provider.NewEmbeddingRequest(texts[start:end]))
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, resp.Embeddings()...)
	}
	return vectors, nil
}

// perfPoints builds file chunk points with random vectors, isolating
// store performance from model inference.
func perfPoints(prefix string, count int) []point.Point {
	texts := chunkFixtures(count) // defined in external_embedding_test.go
	points := make([]point.Point, count)
	for i := range points {
		path := fmt.Sprintf("%s/file_%06d.go", prefix, i)
		points[i] = point.NewPoint(
			point.FileChunkID(path, 0),
			randomVector(embeddingDimension),
			point.NewFileChunkPayload(path, texts[i], time.Now(), 0, 1, "/tmp/perf-repo"),
		)
	}
	return points
}

// randomVector generates a random float64 vector of the given dimension.
func randomVector(dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rand.Float64()*2 - 1
	}
	return v
}

// TestEmbeddingPipeline profiles the full embedding pipeline:
// model inference, vector storage, and vector search.
func TestEmbeddingPipeline(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	embedder := testEmbedder(t)

	// --- Phase 1: ONNX Model Inference ---
	t.Run("model_inference", func(t *testing.T) {
		// The model accepts at most Capacity() texts per call.
		batchSizes := []int{1, 5, 10}
		for _, size := range batchSizes {
			t.Run(fmt.Sprintf("batch_%d", size), func(t *testing.T) {
				texts := make([]string, size)
				for i := range texts {
					texts[i] = fmt.Sprintf("func Handle%d(ctx context.Context) error { return nil }", i)
				}

				start := time.Now()
				resp, err := embedder.Embed(ctx, provider.NewEmbeddingRequest(texts))
				elapsed := time.Since(start)
				require.NoError(t, err)
				require.Len(t, resp.Embeddings(), size)

				perItem := elapsed / time.Duration(size)
				t.Logf("batch=%d  total=%v  per_item=%v  items/sec=%.1f",
					size, elapsed, perItem, float64(size)/elapsed.Seconds())
			})
		}

		// Larger workloads go through capacity-sized batches.
		chunkedCounts := []int{50, 100}
		for _, count := range chunkedCounts {
			t.Run(fmt.Sprintf("chunked_%d", count), func(t *testing.T) {
				texts := make([]string, count)
				for i := range texts {
					texts[i] = fmt.Sprintf("func Handle%d(ctx context.Context) error { return nil }", i)
				}

				start := time.Now()
				vectors, err := embedAll(ctx, embedder, texts)
				elapsed := time.Since(start)
				require.NoError(t, err)
				require.Len(t, vectors, count)

				perItem := elapsed / time.Duration(count)
				t.Logf("count=%d  total=%v  per_item=%v  items/sec=%.1f",
					count, elapsed, perItem, float64(count)/elapsed.Seconds())
			})
		}
	})

	// --- Phase 2: Vector Storage (BatchUpsert) ---
	t.Run("vector_storage", func(t *testing.T) {
		counts := []int{10, 50, 100, 500}
		for _, count := range counts {
			t.Run(fmt.Sprintf("upsert_%d", count), func(t *testing.T) {
				points := perfPoints(fmt.Sprintf("upsert-%d", count), count)

				start := time.Now()
				err := store.BatchUpsert(ctx, points)
				elapsed := time.Since(start)
				require.NoError(t, err)

				perItem := elapsed / time.Duration(count)
				t.Logf("count=%d  total=%v  per_item=%v  items/sec=%.1f",
					count, elapsed, perItem, float64(count)/elapsed.Seconds())
			})
		}
	})

	// --- Phase 3: Vector Search Performance ---
	t.Run("vector_search", func(t *testing.T) {
		// First, populate with a fixed dataset for search tests.
		const datasetSize = 500
		err := store.BatchUpsert(ctx, perfPoints("search-dataset", datasetSize))
		require.NoError(t, err)

		queryVector := randomVector(embeddingDimension)

		limits := []int{5, 10, 50}
		for _, limit := range limits {
			t.Run(fmt.Sprintf("top_%d", limit), func(t *testing.T) {
				const iterations = 20
				var total time.Duration

				for range iterations {
					start := time.Now()
					results, err := store.Search(ctx, queryVector, limit, point.NewFilter())
					elapsed := time.Since(start)
					require.NoError(t, err)
					require.Len(t, results, limit)
					total += elapsed
				}

				avg := total / iterations
				t.Logf("limit=%d  iterations=%d  avg=%v  total=%v  queries/sec=%.1f",
					limit, iterations, avg, total, float64(iterations)/total.Seconds())
			})
		}

		// Payload-filtered search pays for the filter evaluation on top
		// of the vector scan.
		t.Run("filtered", func(t *testing.T) {
			const iterations = 20
			filter := point.NewFilter().WithDataType(point.DataTypeFileChunk)
			var total time.Duration

			for range iterations {
				start := time.Now()
				results, err := store.Search(ctx, queryVector, 10, filter)
				elapsed := time.Since(start)
				require.NoError(t, err)
				require.Len(t, results, 10)
				total += elapsed
			}

			avg := total / iterations
			t.Logf("filter=dataType  iterations=%d  avg=%v  queries/sec=%.1f",
				iterations, avg, float64(iterations)/total.Seconds())
		})
	})

	// --- Phase 4: End-to-End Index Pipeline ---
	t.Run("end_to_end_index", func(t *testing.T) {
		counts := []int{10, 50, 100}
		for _, count := range counts {
			t.Run(fmt.Sprintf("index_%d", count), func(t *testing.T) {
				texts := chunkFixtures(count)

				start := time.Now()
				vectors, err := embedAll(ctx, embedder, texts)
				require.NoError(t, err)

				points := make([]point.Point, count)
				for i := range points {
					path := fmt.Sprintf("e2e-%d/file_%06d.go", count, i)
					points[i] = point.NewPoint(
						point.FileChunkID(path, 0),
						vectors[i],
						point.NewFileChunkPayload(path, texts[i], time.Now(), 0, 1, "/tmp/perf-repo"),
					)
				}
				err = store.BatchUpsert(ctx, points)
				elapsed := time.Since(start)
				require.NoError(t, err)

				perItem := elapsed / time.Duration(count)
				t.Logf("count=%d  total=%v  per_item=%v  items/sec=%.1f",
					count, elapsed, perItem, float64(count)/elapsed.Seconds())
			})
		}
	})

	// --- Phase 5: End-to-End Search ---
	t.Run("end_to_end_search", func(t *testing.T) {
		queries := []string{
			"user authentication login",
			"database query optimization",
			"error handling graceful shutdown",
			"unit test mock dependency injection",
			"REST API endpoint handler",
		}

		for _, query := range queries {
			t.Run(query, func(t *testing.T) {
				const iterations = 5
				var total time.Duration

				for range iterations {
					start := time.Now()
					resp, err := embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{query}))
					require.NoError(t, err)
					results, err := store.Search(ctx, resp.Embeddings()[0], 10, point.NewFilter())
					elapsed := time.Since(start)
					require.NoError(t, err)
					require.NotEmpty(t, results)
					total += elapsed
				}

				avg := total / time.Duration(iterations)
				t.Logf("query=%q  avg=%v  total=%v", query, avg, total)
			})
		}
	})
}

// indexSnippets embeds texts and upserts the resulting file chunk
// points under the given path prefix.
func indexSnippets(ctx context.Context, store *qdrant.Client, embedder *provider.HugotEmbedding, prefix string, texts []string) error {
	vectors, err := embedAll(ctx, embedder, texts)
	if err != nil {
		return err
	}
	points := make([]point.Point, len(texts))
	for i := range points {
		path := fmt.Sprintf("%s/file_%06d.go", prefix, i)
		points[i] = point.NewPoint(
			point.FileChunkID(path, 0),
			vectors[i],
			point.NewFileChunkPayload(path, texts[i], time.Now(), 0, 1, "/tmp/perf-repo"),
		)
	}
	return store.BatchUpsert(ctx, points)
}

// TestEmbeddingPipelineCPUProfile generates a CPU profile of the full
// embedding pipeline. Run with:
//
//	go test -tags "ORT embed_model" -run TestEmbeddingPipelineCPUProfile -v ./test/performance/...
//
// Then analyze with:
//
//	go tool pprof test/performance/cpu.prof
func TestEmbeddingPipelineCPUProfile(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	embedder := testEmbedder(t)

	// Create profile output
	profilePath := "cpu.prof"
	f, err := os.Create(profilePath)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	// Warm up the ONNX model before profiling
	_, err = embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{"warmup"}))
	require.NoError(t, err)

	// Start CPU profiling
	err = pprof.StartCPUProfile(f)
	require.NoError(t, err)
	defer pprof.StopCPUProfile()

	// Profile: index 200 snippets (mix of inference + store writes)
	err = indexSnippets(ctx, store, embedder, "profile", chunkFixtures(200))
	require.NoError(t, err)

	// Profile: 50 search queries (mix of inference + store reads)
	queries := []string{
		"authentication login handler",
		"database repository pattern",
		"kubernetes deployment config",
		"payment processing gateway",
		"test benchmark sort algorithm",
	}
	for i := 0; i < 50; i++ {
		query := queries[i%len(queries)]
		resp, err := embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{query}))
		require.NoError(t, err)
		_, err = store.Search(ctx, resp.Embeddings()[0], 10, point.NewFilter())
		require.NoError(t, err)
	}

	t.Logf("CPU profile written to %s", profilePath)
	t.Log("Analyze with: go tool pprof test/performance/cpu.prof")
}

// TestEmbeddingPipelineMemProfile generates a memory profile.
func TestEmbeddingPipelineMemProfile(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	embedder := testEmbedder(t)

	// Warm up
	_, err := embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{"warmup"}))
	require.NoError(t, err)

	// Allocate/index 200 snippets
	err = indexSnippets(ctx, store, embedder, "memprofile", chunkFixtures(200))
	require.NoError(t, err)

	// Search 20 times
	queryResp, err := embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{"authentication handler"}))
	require.NoError(t, err)
	for range 20 {
		_, err := store.Search(ctx, queryResp.Embeddings()[0], 10, point.NewFilter())
		require.NoError(t, err)
	}

	// Force GC and write heap profile
	runtime.GC()

	profilePath := "mem.prof"
	f, err := os.Create(profilePath)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	err = pprof.WriteHeapProfile(f)
	require.NoError(t, err)

	t.Logf("Memory profile written to %s", profilePath)
	t.Log("Analyze with: go tool pprof -alloc_space test/performance/mem.prof")
}

// TestPointCopyOverhead measures the overhead of defensive vector copying
// in the domain layer (NewPoint, Point.Vector()) and of JSON-encoding a
// vector, which every upsert pays on the wire.
func TestPointCopyOverhead(t *testing.T) {
	const iterations = 10000
	vec := randomVector(embeddingDimension)
	payload := point.NewFileChunkPayload("perf/file.go", "func main() {}", time.Now(), 0, 1, "")

	t.Run("NewPoint_creation", func(t *testing.T) {
		start := time.Now()
		for range iterations {
			_ = point.NewPoint("test", vec, payload)
		}
		elapsed := time.Since(start)
		t.Logf("iterations=%d  total=%v  per_op=%v", iterations, elapsed, elapsed/iterations)
	})

	t.Run("Point_Vector_read", func(t *testing.T) {
		p := point.NewPoint("test", vec, payload)
		start := time.Now()
		for range iterations {
			_ = p.Vector()
		}
		elapsed := time.Since(start)
		t.Logf("iterations=%d  total=%v  per_op=%v", iterations, elapsed, elapsed/iterations)
	})

	t.Run("vector_JSON_serialization", func(t *testing.T) {
		start := time.Now()
		for range iterations {
			if _, err := json.Marshal(vec); err != nil {
				t.Fatalf("marshal vector: %v", err)
			}
		}
		elapsed := time.Since(start)
		t.Logf("iterations=%d  total=%v  per_op=%v", iterations, elapsed, elapsed/iterations)
	})
}

// TestBatchUpsertBatchSize measures how the client's wire batch size
// affects upsert throughput for a fixed 500-point dataset.
func TestBatchUpsertBatchSize(t *testing.T) {
	ctx := context.Background()
	testStore(t) // health-gates the run and registers the purge

	const datasetSize = 500
	batchSizes := []int{10, 50, 100, 250, 500}
	for _, size := range batchSizes {
		t.Run(fmt.Sprintf("batch_%d", size), func(t *testing.T) {
			store := qdrant.NewClient(qdrantURL, perfCollection, embeddingDimension, qdrant.WithBatchSize(size))
			points := perfPoints(fmt.Sprintf("batch-size-%d", size), datasetSize)

			start := time.Now()
			err := store.BatchUpsert(ctx, points)
			elapsed := time.Since(start)
			require.NoError(t, err)

			perItem := elapsed / datasetSize
			t.Logf("batch_size=%d  points=%d  total=%v  per_item=%v  items/sec=%.1f",
				size, datasetSize, elapsed, perItem, float64(datasetSize)/elapsed.Seconds())
		})
	}
}
