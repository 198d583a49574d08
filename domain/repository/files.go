package repository

import (
	"path/filepath"
	"strings"
)

// indexableExtensions lists the file extensions eligible for content
// indexing. Matching is case-insensitive.
var indexableExtensions = map[string]struct{}{
	"py": {}, "pyw": {}, "pyx": {},
	"go":   {},
	"js":   {},
	"jsx":  {},
	"mjs":  {},
	"ts":   {},
	"tsx":  {},
	"java": {},
	"cs":   {},
	"cpp":  {}, "cc": {}, "cxx": {}, "hpp": {},
	"c": {}, "h": {},
	"rs":    {},
	"php":   {},
	"rb":    {},
	"swift": {},
	"kt":    {}, "kts": {},
	"scala": {},
	"r":     {},
	"pl":    {}, "pm": {},
	"sh": {}, "bash": {},
	"ps1":  {},
	"sql":  {},
	"html": {},
	"css":  {}, "scss": {},
	"vue":    {},
	"svelte": {},
	"yml":    {}, "yaml": {},
	"json": {},
	"toml": {},
	"xml":  {},
	"md":   {}, "markdown": {},
	"txt": {},
}

// skipDirs are path segments that exclude a file from indexing.
var skipDirs = map[string]struct{}{
	"node_modules": {},
	"dist":         {},
}

// IsIndexable reports whether a repository-relative path passes the
// extension allowlist and is not under an excluded directory.
func IsIndexable(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if _, skip := skipDirs[segment]; skip {
			return false
		}
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return false
	}
	_, ok := indexableExtensions[strings.ToLower(ext)]
	return ok
}

// FilterIndexable returns the subset of paths eligible for indexing,
// preserving input order.
func FilterIndexable(paths []string) []string {
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		if IsIndexable(p) {
			result = append(result, p)
		}
	}
	return result
}
