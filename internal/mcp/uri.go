package mcp

import (
	"fmt"
	"net/url"
	"strings"
)

// Resource URIs served by the MCP server. The file template uses
// reserved expansion so paths with slashes match.
const (
	StructureURI    = "repo://structure"
	HealthURI       = "repo://health"
	VersionURI      = "repo://version"
	FileURITemplate = "repo://files/{+filepath}"

	fileURIPrefix = "repo://files/"
)

// FileURI locates one repository file as a repo://files resource.
// Immutable value object — methods return copies.
type FileURI struct {
	path string
}

// NewFileURI creates a FileURI for a repository-relative path.
func NewFileURI(path string) FileURI {
	return FileURI{path: path}
}

// ParseFileURI extracts the repository-relative path from a
// repo://files URI. Percent-encoded segments are unescaped; the guard
// against traversal stays with the caller.
func ParseFileURI(uri string) (FileURI, error) {
	if !strings.HasPrefix(uri, fileURIPrefix) {
		return FileURI{}, fmt.Errorf("not a file resource URI: %s", uri)
	}
	raw := strings.TrimPrefix(uri, fileURIPrefix)
	path, err := url.PathUnescape(raw)
	if err != nil {
		return FileURI{}, fmt.Errorf("malformed file resource URI %s: %w", uri, err)
	}
	if path == "" {
		return FileURI{}, fmt.Errorf("file resource URI has no path: %s", uri)
	}
	return FileURI{path: path}, nil
}

// Path returns the repository-relative path.
func (u FileURI) Path() string { return u.path }

// String renders the repo://files URI with each path segment escaped.
func (u FileURI) String() string {
	segments := strings.Split(u.path, "/")
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return fileURIPrefix + strings.Join(escaped, "/")
}
