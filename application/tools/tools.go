// Package tools implements the callable tool surface shared by the MCP
// server and the agent loop. A Registry owns the tool descriptors,
// validates arguments against them, and dispatches to handlers that
// orchestrate the application services.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/codecompass/codecompass/application/service"
	"github.com/codecompass/codecompass/domain/indexing"
	"github.com/codecompass/codecompass/domain/point"
	domainservice "github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/internal/config"
)

// Tool names, as registered with MCP and rendered to the agent.
const (
	ToolSearchCode         = "search_code"
	ToolRepositoryContext  = "get_repository_context"
	ToolGenerateSuggestion = "generate_suggestion"
	ToolGetChangelog       = "get_changelog"
	ToolAnalyzeProblem     = "analyze_code_problem"
	ToolAgentQuery         = "agent_query"
	ToolAdditionalContext  = "request_additional_context"
	ToolMoreSteps          = "request_more_processing_steps"
	ToolSwitchModel        = "switch_suggestion_model"
	ToolIndexingStatus     = "get_indexing_status"
	ToolTriggerUpdate      = "trigger_repository_update"
)

// Dispatch errors. Callers render them with FormatErrorResult so the
// model or MCP client always receives well-formed text.
var (
	ErrUnknownTool     = errors.New("unknown tool")
	ErrModelRequired   = errors.New("suggestion model required")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPathOutsideRepo = errors.New("path escapes the repository root")
)

// Param describes one tool parameter.
type Param struct {
	Name        string
	Type        string // "string" or "integer"
	Description string
	Required    bool
}

// Tool describes one callable tool.
type Tool struct {
	Name          string
	Description   string
	Parameters    []Param
	RequiresModel bool

	handler func(ctx context.Context, args Args) (string, error)
}

// Args is the decoded argument map of one call.
type Args map[string]any

// String returns the named string argument ("" when absent).
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns the named integer argument. JSON decoding yields float64,
// so integral floats are accepted.
func (a Args) Int(name string) (int, bool) {
	switch v := a[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Searcher runs refinement searches. *service.Retriever implements it.
type Searcher interface {
	SearchWithRefinement(ctx context.Context, query string, opts ...service.RetrievalOption) (service.RetrievalResult, error)
}

// ChunkScroller pages stored points. The vector store implements it.
type ChunkScroller interface {
	Scroll(ctx context.Context, filter point.Filter, limit int, offset string) (domainservice.ScrollPage, error)
}

// DiffSource renders the repository's most recent diff. The git
// inspector implements it.
type DiffSource interface {
	RepositoryDiff(ctx context.Context) (string, error)
}

// IndexControl triggers and observes indexing runs. *service.Indexer
// implements it.
type IndexControl interface {
	Trigger(ctx context.Context) error
	Status() indexing.Status
}

// AgentRunner answers a query through the agent loop. *service.Agent
// implements it.
type AgentRunner interface {
	Query(ctx context.Context, query, sessionID string) (string, error)
}

// CacheClearer drops cached provider instances. *provider.Factory
// implements it.
type CacheClearer interface {
	ClearCache()
}

// Deps carries the collaborators the registry's tools call into.
type Deps struct {
	Config     *config.AppConfig
	Sessions   *service.SessionStore
	Retriever  Searcher
	Store      ChunkScroller
	Diffs      DiffSource
	Generators domainservice.TextGeneratorSource
	Indexer    IndexControl
	Agent      AgentRunner
	Cache      CacheClearer
	Logger     *slog.Logger
}

// Registry owns the tool descriptors and dispatches calls to their
// handlers.
type Registry struct {
	cfg        *config.AppConfig
	sessions   *service.SessionStore
	retriever  Searcher
	store      ChunkScroller
	diffs      DiffSource
	generators domainservice.TextGeneratorSource
	indexer    IndexControl
	agent      AgentRunner
	cache      CacheClearer
	repoPath   string
	logger     *slog.Logger
	now        func() time.Time

	order []string
	tools map[string]*Tool
}

// NewRegistry creates a Registry with every tool registered.
func NewRegistry(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:        deps.Config,
		sessions:   deps.Sessions,
		retriever:  deps.Retriever,
		store:      deps.Store,
		diffs:      deps.Diffs,
		generators: deps.Generators,
		indexer:    deps.Indexer,
		agent:      deps.Agent,
		cache:      deps.Cache,
		repoPath:   deps.Config.RepoPath(),
		logger:     logger,
		now:        time.Now,
		tools:      make(map[string]*Tool),
	}
	r.registerAll()
	return r
}

// register appends a tool, preserving registration order.
func (r *Registry) register(tool *Tool) {
	r.order = append(r.order, tool.Name)
	r.tools[tool.Name] = tool
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	result := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, *r.tools[name])
	}
	return result
}

// Dispatch validates the call against the tool's descriptor and runs
// its handler. Validation and handler failures come back as errors;
// FormatErrorResult turns them into presentable text.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if tool.RequiresModel && !r.generators.SuggestionAvailable(ctx) {
		return "", fmt.Errorf("%w: %s needs a configured suggestion model", ErrModelRequired, name)
	}
	if err := validateArgs(tool, args); err != nil {
		return "", err
	}
	return tool.handler(ctx, Args(args))
}

// DispatchText runs Dispatch and renders any failure as a well-formed
// error result, so the returned text is always presentable.
func (r *Registry) DispatchText(ctx context.Context, name string, args map[string]any) string {
	result, err := r.Dispatch(ctx, name, args)
	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "error", err)
		return FormatErrorResult(name, err)
	}
	return result
}

// Describe renders the tool list for the agent's system prompt.
// agent_query is never offered to the agent itself, and model-gated
// tools are hidden while no suggestion model is available.
func (r *Registry) Describe(modelAvailable bool) string {
	var b strings.Builder
	for _, name := range r.order {
		tool := r.tools[name]
		if tool.Name == ToolAgentQuery {
			continue
		}
		if tool.RequiresModel && !modelAvailable {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		for _, p := range tool.Parameters {
			requirement := "optional"
			if p.Required {
				requirement = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, requirement, p.Description)
		}
	}
	return b.String()
}

// validateArgs checks declared parameters: required presence, and type
// when present. Extra arguments are tolerated.
func validateArgs(tool *Tool, args map[string]any) error {
	for _, p := range tool.Parameters {
		value, present := args[p.Name]
		if !present || value == nil {
			if p.Required {
				return fmt.Errorf("%w: parameter %q is required for %s", ErrInvalidArgument, p.Name, tool.Name)
			}
			continue
		}
		switch p.Type {
		case "string":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: parameter %q of %s must be a string", ErrInvalidArgument, p.Name, tool.Name)
			}
			if p.Required && strings.TrimSpace(s) == "" {
				return fmt.Errorf("%w: parameter %q of %s must not be blank", ErrInvalidArgument, p.Name, tool.Name)
			}
		case "integer":
			if _, ok := Args(args).Int(p.Name); !ok {
				return fmt.Errorf("%w: parameter %q of %s must be an integer", ErrInvalidArgument, p.Name, tool.Name)
			}
		}
	}
	return nil
}

// FormatErrorResult renders a dispatch failure as the error text
// returned to the model or MCP client.
func FormatErrorResult(name string, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Error in %s\n\n%v\n", name, err)
	if hint := remediationHint(err); hint != "" {
		fmt.Fprintf(&b, "\nHint: %s\n", hint)
	}
	return b.String()
}

// remediationHint maps known failure classes to a next step.
func remediationHint(err error) string {
	switch {
	case errors.Is(err, indexing.ErrIndexingInProgress):
		return "an indexing run is already active; use get_indexing_status to track its progress"
	case errors.Is(err, ErrUnknownTool):
		return "use one of the registered tool names"
	case errors.Is(err, ErrModelRequired):
		return "configure a suggestion provider (SUGGESTION_PROVIDER plus its API key) or use switch_suggestion_model"
	case errors.Is(err, ErrInvalidArgument):
		return "check the tool's parameter names and types"
	case errors.Is(err, ErrPathOutsideRepo):
		return "use a path relative to the repository root"
	case errors.Is(err, service.ErrSessionNotFound):
		return "omit sessionId to start a new session"
	default:
		return ""
	}
}

// registerAll wires every tool descriptor to its handler.
func (r *Registry) registerAll() {
	sessionParam := Param{
		Name:        "sessionId",
		Type:        "string",
		Description: "Session to continue; omit to start a new one",
	}

	r.register(&Tool{
		Name:        ToolSearchCode,
		Description: "Semantic search over indexed file chunks, commits, and diffs, with automatic query refinement",
		Parameters: []Param{
			{Name: "query", Type: "string", Description: "Natural-language or code search query", Required: true},
			sessionParam,
		},
		handler: r.searchCode,
	})
	r.register(&Tool{
		Name:        ToolRepositoryContext,
		Description: "Relevant code for a query plus the latest repository diff and recent session activity",
		Parameters: []Param{
			{Name: "query", Type: "string", Description: "Topic to gather repository context for", Required: true},
			sessionParam,
		},
		handler: r.repositoryContext,
	})
	r.register(&Tool{
		Name:          ToolGenerateSuggestion,
		Description:   "Generate a code suggestion grounded in retrieved repository context",
		RequiresModel: true,
		Parameters: []Param{
			{Name: "query", Type: "string", Description: "What to implement or change", Required: true},
			sessionParam,
		},
		handler: r.generateSuggestion,
	})
	r.register(&Tool{
		Name:        ToolGetChangelog,
		Description: "Contents of CHANGELOG.md at the repository root",
		handler:     r.getChangelog,
	})
	r.register(&Tool{
		Name:          ToolAnalyzeProblem,
		Description:   "Analyze a code problem and produce an implementation plan (two model passes)",
		RequiresModel: true,
		Parameters: []Param{
			{Name: "query", Type: "string", Description: "The problem to analyze", Required: true},
			sessionParam,
		},
		handler: r.analyzeProblem,
	})
	r.register(&Tool{
		Name:        ToolAgentQuery,
		Description: "Answer a question through the autonomous multi-step agent",
		Parameters: []Param{
			{Name: "query", Type: "string", Description: "The question to answer", Required: true},
			sessionParam,
		},
		handler: r.agentQuery,
	})
	r.register(&Tool{
		Name:        ToolAdditionalContext,
		Description: "Fetch extra context: more search results, full file content, a directory listing, or chunks adjacent to one already seen",
		Parameters: []Param{
			{Name: "context_type", Type: "string", Description: "One of MORE_SEARCH_RESULTS, FULL_FILE_CONTENT, DIRECTORY_LISTING, ADJACENT_FILE_CHUNKS", Required: true},
			{Name: "query_or_path", Type: "string", Description: "Search query or repository-relative path, depending on context_type", Required: true},
			{Name: "lines", Type: "string", Description: "Line ranges like L17-L26,L45 restricting FULL_FILE_CONTENT output"},
			{Name: "chunk_index", Type: "integer", Description: "Reference chunk index for ADJACENT_FILE_CHUNKS"},
			{Name: "reasoning", Type: "string", Description: "Why the additional context is needed"},
			sessionParam,
		},
		handler: r.additionalContext,
	})
	r.register(&Tool{
		Name:        ToolMoreSteps,
		Description: "Request an extension of the agent's processing step budget",
		Parameters: []Param{
			{Name: "reasoning", Type: "string", Description: "Why more steps are needed", Required: true},
		},
		handler: r.moreSteps,
	})
	r.register(&Tool{
		Name:        ToolSwitchModel,
		Description: "Switch the suggestion model (and optionally provider) at runtime",
		Parameters: []Param{
			{Name: "model", Type: "string", Description: "Model identifier to switch to", Required: true},
			{Name: "provider", Type: "string", Description: "Provider name (openai, deepseek, ollama, gemini, claude); defaults to the current one"},
		},
		handler: r.switchModel,
	})
	r.register(&Tool{
		Name:        ToolIndexingStatus,
		Description: "Snapshot of the current indexing run",
		handler:     r.indexingStatus,
	})
	r.register(&Tool{
		Name:        ToolTriggerUpdate,
		Description: "Start a background re-index of the repository",
		handler:     r.triggerUpdate,
	})
}

// session resolves the call's session, creating one when needed.
func (r *Registry) session(args Args) (string, error) {
	id, err := r.sessions.GetOrCreate(args.String("sessionId"), r.repoPath)
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return id, nil
}

// withSession appends the session trailer so clients can continue the
// conversation.
func withSession(text, id string) string {
	return strings.TrimRight(text, "\n") + "\n\n---\nSession ID: " + id + "\n"
}

// truncate cuts text at limit and marks the cut.
func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "\n... [truncated]"
}
