//go:build embed_model

package provider

import "embed"

// embeddedModelFS carries the embedding model compiled into the binary.
// Populate models/ (cmd/download-model) before building with this tag.
//
//go:embed all:models
var embeddedModelFS embed.FS

const hasEmbeddedModel = true
