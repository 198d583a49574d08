// Package mcp binds the tool registry, repository resources, and named
// prompts to a Model Context Protocol server served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/codecompass/codecompass/application/tools"
	"github.com/codecompass/codecompass/domain/indexing"
	"github.com/codecompass/codecompass/infrastructure/git"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolSource provides the tool descriptors and dispatch for MCP tool
// calls. *tools.Registry implements it.
type ToolSource interface {
	Tools() []tools.Tool
	Dispatch(ctx context.Context, name string, args map[string]any) (string, error)
}

// HealthChecker verifies the vector store is reachable. The Qdrant
// store implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusSource reports the indexing run state. *service.Indexer
// implements it.
type StatusSource interface {
	Status() indexing.Status
}

// FileLister enumerates the repository files tracked at HEAD. The git
// inspector implements it.
type FileLister interface {
	ListFiles(ctx context.Context) ([]string, error)
}

// Server wraps the MCP server with the CodeCompass tools, resources,
// and prompts.
type Server struct {
	mcpServer *server.MCPServer
	registry  ToolSource
	health    HealthChecker
	status    StatusSource
	files     FileLister
	repoPath  string
	version   string
	logger    *slog.Logger
}

// NewServer creates an MCP server exposing every registered tool, the
// repo:// resources, and the named prompts.
func NewServer(registry ToolSource, health HealthChecker, status StatusSource, files FileLister, repoPath, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry: registry,
		health:   health,
		status:   status,
		files:    files,
		repoPath: repoPath,
		version:  version,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"CodeCompass",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)
	s.registerPrompts(mcpServer)

	s.mcpServer = mcpServer
	return s
}

// registerTools exposes every registry tool. Argument validation and
// model gating live in the registry, so the handler only relays the
// call and renders failures as error results.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	for _, t := range s.registry.Tools() {
		opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
		for _, p := range t.Parameters {
			propOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
			if p.Required {
				propOpts = append(propOpts, mcp.Required())
			}
			switch p.Type {
			case "integer":
				opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
			default:
				opts = append(opts, mcp.WithString(p.Name, propOpts...))
			}
		}

		name := t.Name
		mcpServer.AddTool(mcp.NewTool(name, opts...), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := s.registry.Dispatch(ctx, name, request.GetArguments())
			if err != nil {
				s.logger.Warn("tool call failed", slog.String("tool", name), slog.Any("error", err))
				return mcp.NewToolResultError(tools.FormatErrorResult(name, err)), nil
			}
			return mcp.NewToolResultText(text), nil
		})
	}
}

// registerResources exposes the repo:// resources.
func (s *Server) registerResources(mcpServer *server.MCPServer) {
	structure := mcp.NewResource(
		StructureURI,
		"Repository structure",
		mcp.WithResourceDescription("Tree listing of the files tracked in the repository"),
		mcp.WithMIMEType("text/plain"),
	)
	mcpServer.AddResource(structure, s.handleStructure)

	health := mcp.NewResource(
		HealthURI,
		"Server health",
		mcp.WithResourceDescription("Vector store reachability and current indexing state"),
		mcp.WithMIMEType("application/json"),
	)
	mcpServer.AddResource(health, s.handleHealth)

	version := mcp.NewResource(
		VersionURI,
		"Server version",
		mcp.WithResourceDescription("CodeCompass version"),
		mcp.WithMIMEType("text/plain"),
	)
	mcpServer.AddResource(version, s.handleVersion)

	files := mcp.NewResourceTemplate(
		FileURITemplate,
		"Repository file",
		mcp.WithTemplateDescription("Contents of one file, addressed by repository-relative path"),
	)
	mcpServer.AddResourceTemplate(files, s.handleFile)
}

// handleStructure renders the tracked file tree.
func (s *Server) handleStructure(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	paths, err := s.files.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repository files: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StructureURI,
			MIMEType: "text/plain",
			Text:     renderTree(paths),
		},
	}, nil
}

// handleFile serves one repository file. The path guard is the same
// one the context tool applies, so traversal and symlink escapes are
// rejected identically on both surfaces.
func (s *Server) handleFile(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	fileURI, err := ParseFileURI(request.Params.URI)
	if err != nil {
		return nil, err
	}

	resolved, cleaned, err := tools.ResolveWithin(s.repoPath, fileURI.Path())
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cleaned, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: git.MIMETypeFromPath(cleaned),
			Text:     string(data),
		},
	}, nil
}

// handleHealth reports vector store reachability and the indexing
// snapshot as JSON.
func (s *Server) handleHealth(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	type indexingReport struct {
		State    string `json:"state"`
		Progress int    `json:"progress"`
		Message  string `json:"message"`
	}
	type healthReport struct {
		Service     string         `json:"service"`
		Status      string         `json:"status"`
		Version     string         `json:"version"`
		VectorStore string         `json:"vector_store"`
		Indexing    indexingReport `json:"indexing"`
	}

	report := healthReport{
		Service:     "CodeCompass",
		Status:      "ok",
		Version:     s.version,
		VectorStore: "reachable",
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		report.Status = "degraded"
		report.VectorStore = err.Error()
	}

	st := s.status.Status()
	report.Indexing = indexingReport{
		State:    string(st.State()),
		Progress: st.Progress(),
		Message:  st.Message(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal health report: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      HealthURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// handleVersion serves the version string.
func (s *Server) handleVersion(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      VersionURI,
			MIMEType: "text/plain",
			Text:     s.version,
		},
	}, nil
}

// promptSpec pairs a prompt with the instruction it expands to. The
// %s receives the client's query.
type promptSpec struct {
	name        string
	description string
	argDesc     string
	template    string
}

var promptSpecs = []promptSpec{
	{
		name:        "repository-context",
		description: "Gather relevant code and recent changes for a topic",
		argDesc:     "Topic to gather repository context for",
		template:    "Use the get_repository_context tool to gather repository context for: %s",
	},
	{
		name:        "code-suggestion",
		description: "Generate a code suggestion grounded in the repository",
		argDesc:     "What to implement or change",
		template:    "Use the generate_suggestion tool to produce a code suggestion for: %s",
	},
	{
		name:        "code-analysis",
		description: "Analyze a code problem and produce an implementation plan",
		argDesc:     "The problem to analyze",
		template:    "Use the analyze_code_problem tool to analyze the following problem and produce an implementation plan: %s",
	},
}

// registerPrompts exposes the named prompts, each taking one required
// query argument.
func (s *Server) registerPrompts(mcpServer *server.MCPServer) {
	for _, spec := range promptSpecs {
		prompt := mcp.NewPrompt(spec.name,
			mcp.WithPromptDescription(spec.description),
			mcp.WithArgument("query",
				mcp.ArgumentDescription(spec.argDesc),
				mcp.RequiredArgument(),
			),
		)

		mcpServer.AddPrompt(prompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			query := strings.TrimSpace(request.Params.Arguments["query"])
			if query == "" {
				return nil, fmt.Errorf("query argument is required for %s", spec.name)
			}
			return &mcp.GetPromptResult{
				Description: spec.description,
				Messages: []mcp.PromptMessage{
					{
						Role: mcp.RoleUser,
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(spec.template, query),
						},
					},
				},
			}, nil
		})
	}
}

// renderTree renders repository-relative paths as an indented tree.
// Directories appear once, before their contents.
func renderTree(paths []string) string {
	if len(paths) == 0 {
		return "(no tracked files)\n"
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	var b strings.Builder
	seen := make(map[string]bool)
	for _, p := range sorted {
		segments := strings.Split(p, "/")
		for i := 0; i < len(segments)-1; i++ {
			dir := strings.Join(segments[:i+1], "/")
			if seen[dir] {
				continue
			}
			seen[dir] = true
			fmt.Fprintf(&b, "%s%s/\n", strings.Repeat("  ", i), segments[i])
		}
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", len(segments)-1), segments[len(segments)-1])
	}
	return b.String()
}

// MCPServer returns the underlying MCP server for in-process message
// handling.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// HTTPHandler returns a streamable HTTP handler for mounting the same
// server on the utility HTTP surface.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}
