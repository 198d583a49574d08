package provider

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// hugotBatchMax caps the texts per Embed call; larger batches blow up
// tokenizer memory on long code chunks.
const hugotBatchMax = 10

// inferenceRuntime is the process-wide ONNX runtime state. ORT permits
// one active session per process and is not thread-safe, so every
// HugotEmbedding shares this and the mutex covers both setup and
// inference.
type inferenceRuntime struct {
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	ready    bool
}

var ortRuntime inferenceRuntime

// HugotEmbedding embeds text locally with the
// st-codesearch-distilroberta-base model, so indexing works without any
// network provider. Model weights come from a subdirectory of cacheDir
// holding tokenizer.json, or, when built with -tags embed_model, from
// files compiled into the binary and unpacked to cacheDir on first use.
type HugotEmbedding struct {
	cacheDir string
}

// NewHugotEmbedding creates a local embedder rooted at cacheDir.
func NewHugotEmbedding(cacheDir string) *HugotEmbedding {
	return &HugotEmbedding{cacheDir: cacheDir}
}

// Available reports whether model weights can be resolved, either from
// disk or compiled in.
func (h *HugotEmbedding) Available() bool {
	if hasEmbeddedModel {
		return true
	}
	_, err := h.diskModelPath()
	return err == nil
}

// Capacity returns the maximum number of texts per Embed call.
func (h *HugotEmbedding) Capacity() int { return hugotBatchMax }

// SupportsTextGeneration returns false; the local model only embeds.
func (h *HugotEmbedding) SupportsTextGeneration() bool { return false }

// SupportsEmbedding returns true.
func (h *HugotEmbedding) SupportsEmbedding() bool { return true }

// Embed runs the local pipeline over the given texts.
func (h *HugotEmbedding) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	texts := req.Texts()
	if len(texts) == 0 {
		return NewEmbeddingResponse([][]float64{}, NewUsage(0, 0, 0)), nil
	}
	if len(texts) > hugotBatchMax {
		return EmbeddingResponse{}, fmt.Errorf("embed: %d texts exceeds capacity %d", len(texts), hugotBatchMax)
	}
	if err := ctx.Err(); err != nil {
		return EmbeddingResponse{}, err
	}

	if err := h.ensureRuntime(); err != nil {
		return EmbeddingResponse{}, fmt.Errorf("initialize hugot: %w", err)
	}

	ortRuntime.mu.Lock()
	defer ortRuntime.mu.Unlock()

	result, err := ortRuntime.pipeline.RunPipeline(texts)
	if err != nil {
		return EmbeddingResponse{}, fmt.Errorf("run embedding pipeline: %w", err)
	}

	embeddings := make([][]float64, len(result.Embeddings))
	for i, vec32 := range result.Embeddings {
		vec := make([]float64, len(vec32))
		for j, v := range vec32 {
			vec[j] = float64(v)
		}
		embeddings[i] = vec
	}
	return NewEmbeddingResponse(embeddings, NewUsage(0, 0, 0)), nil
}

// Close is a no-op. The runtime is process-global and shared across
// instances; it lives until the process exits.
func (h *HugotEmbedding) Close() error { return nil }

// ensureRuntime builds the shared session and pipeline on first use.
func (h *HugotEmbedding) ensureRuntime() error {
	ortRuntime.mu.Lock()
	defer ortRuntime.mu.Unlock()

	if ortRuntime.ready {
		return nil
	}

	session, err := newInferenceSession()
	if err != nil {
		return fmt.Errorf("create hugot session: %w", err)
	}

	modelPath, err := h.resolveModelPath()
	if err != nil {
		_ = session.Destroy()
		return err
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "builtin-embeddings",
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	})
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("create feature extraction pipeline: %w", err)
	}

	ortRuntime.session = session
	ortRuntime.pipeline = pipeline
	ortRuntime.ready = true
	return nil
}

// resolveModelPath prefers weights already on disk and falls back to
// unpacking the compiled-in model.
func (h *HugotEmbedding) resolveModelPath() (string, error) {
	if diskPath, err := h.diskModelPath(); err == nil {
		return diskPath, nil
	}
	if !hasEmbeddedModel {
		return "", fmt.Errorf("no model found in %s and no embedded model compiled in (build with -tags embed_model)", h.cacheDir)
	}
	if err := os.MkdirAll(h.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	return extractEmbeddedModel(embeddedModelFS, h.cacheDir)
}

// diskModelPath finds a subdirectory of cacheDir containing
// tokenizer.json, the marker every hugot model directory carries.
func (h *HugotEmbedding) diskModelPath() (string, error) {
	entries, err := os.ReadDir(h.cacheDir)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", h.cacheDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(h.cacheDir, entry.Name())
		if _, statErr := os.Stat(filepath.Join(candidate, "tokenizer.json")); statErr == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no model subdirectory with tokenizer.json found in %s", h.cacheDir)
}

// extractEmbeddedModel unpacks the compiled-in model files under
// targetDir and returns the model directory. A previously unpacked
// model (tokenizer.json present) is reused as-is.
func extractEmbeddedModel(embedded fs.FS, targetDir string) (string, error) {
	modelsFS, err := fs.Sub(embedded, "models")
	if err != nil {
		return "", fmt.Errorf("access embedded models: %w", err)
	}

	entries, err := fs.ReadDir(modelsFS, ".")
	if err != nil {
		return "", fmt.Errorf("read embedded models: %w", err)
	}

	var name string
	for _, entry := range entries {
		if entry.IsDir() {
			name = entry.Name()
			break
		}
	}
	if name == "" {
		return "", fmt.Errorf("no model directory found in embedded models")
	}

	modelPath := filepath.Join(targetDir, name)
	if _, statErr := os.Stat(filepath.Join(modelPath, "tokenizer.json")); statErr == nil {
		return modelPath, nil
	}

	modelFS, err := fs.Sub(modelsFS, name)
	if err != nil {
		return "", fmt.Errorf("access model subdirectory: %w", err)
	}

	walkErr := fs.WalkDir(modelFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(modelPath, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, readErr := fs.ReadFile(modelFS, path)
		if readErr != nil {
			return fmt.Errorf("read embedded file %s: %w", path, readErr)
		}
		if mkdirErr := os.MkdirAll(filepath.Dir(target), 0o755); mkdirErr != nil {
			return fmt.Errorf("create directory for %s: %w", path, mkdirErr)
		}
		return os.WriteFile(target, data, 0o644)
	})
	if walkErr != nil {
		return "", fmt.Errorf("extract embedded model: %w", walkErr)
	}

	return modelPath, nil
}

var (
	_ EmbeddingOnlyProvider = (*HugotEmbedding)(nil)
	_ Embedder              = (*HugotEmbedding)(nil)
)
