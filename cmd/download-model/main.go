// Standalone tool that downloads the st-codesearch-distilroberta-base
// embedding model in ONNX format for the local hugot backend.
//
// The destination is either a model cache directory (runtime lookup) or
// infrastructure/provider/models/ when building with -tags embed_model.
//
// Usage: download-model [dest]
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knights-analytics/hugot"
)

const modelRepo = "flax-sentence-embeddings/st-codesearch-distilroberta-base"

func main() {
	dest := "infrastructure/provider/models"
	if len(os.Args) > 1 {
		dest = os.Args[1]
	}

	// Skip if a usable model is already in place.
	modelDir := filepath.Join(dest, filepath.Base(modelRepo))
	if _, err := os.Stat(filepath.Join(modelDir, "tokenizer.json")); err == nil {
		if _, err := os.Stat(filepath.Join(modelDir, "onnx", "model.onnx")); err == nil {
			fmt.Printf("Model already present at %s\n", modelDir)
			return
		}
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Downloading %s to %s...\n", modelRepo, dest)

	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"

	var (
		modelPath string
		err       error
	)
	delay := 2 * time.Second
	for i := range 4 {
		if i > 0 {
			fmt.Fprintf(os.Stderr, "retry in %s: %v\n", delay, err)
			time.Sleep(delay)
			delay *= 2
		}

		if modelPath, err = hugot.DownloadModel(modelRepo, dest, opts); err == nil {
			break
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "download model: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Model ready at %s\n", modelPath)
}
