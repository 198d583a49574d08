//go:build !embed_model

package provider

import "embed"

// embeddedModelFS is empty without the embed_model build tag; model files
// must already exist under the cache directory.
var embeddedModelFS embed.FS

const hasEmbeddedModel = false
