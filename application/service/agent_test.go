package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecompass/codecompass/domain/agent"
	"github.com/codecompass/codecompass/domain/service"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	outputs []string
	delays  map[int]time.Duration
	errs    map[int]error
	prompts []string
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, _, userPrompt string) (string, error) {
	g.mu.Lock()
	idx := len(g.prompts)
	g.prompts = append(g.prompts, userPrompt)
	delay := g.delays[idx]
	err := g.errs[idx]
	var out string
	if idx < len(g.outputs) {
		out = g.outputs[idx]
	} else if err == nil {
		err = errors.New("no scripted output")
	}
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

func (g *scriptedGenerator) prompt(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i >= len(g.prompts) {
		return ""
	}
	return g.prompts[i]
}

type fakeGeneratorSource struct {
	gen       *scriptedGenerator
	available bool
	err       error
}

func (s *fakeGeneratorSource) SuggestionGenerator(context.Context) (service.TextGenerator, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.gen, nil
}

func (s *fakeGeneratorSource) SuggestionAvailable(context.Context) bool { return s.available }

type fakeChecker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeChecker) CheckConnection(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

type dispatchedCall struct {
	name string
	args map[string]any
}

type fakeDispatcher struct {
	mu        sync.Mutex
	calls     []dispatchedCall
	results   map[string]string
	errs      map[string]error
	delays    map[string]time.Duration
	describes []bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, name string, args map[string]any) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, dispatchedCall{name: name, args: args})
	delay := d.delays[name]
	err := d.errs[name]
	result, ok := d.results[name]
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	if !ok {
		result = "ok"
	}
	return result, nil
}

func (d *fakeDispatcher) Describe(modelAvailable bool) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.describes = append(d.describes, modelAvailable)
	return "- search_code: semantic code search over the indexed repository"
}

func (d *fakeDispatcher) dispatched() []dispatchedCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	calls := make([]dispatchedCall, len(d.calls))
	copy(calls, d.calls)
	return calls
}

func newTestAgent(t *testing.T, source *fakeGeneratorSource, dispatcher *fakeDispatcher, defaultMax, absoluteMax int) (*Agent, *SessionStore) {
	t.Helper()
	sessions := NewSessionStore(testLogger())
	a := NewAgent(source, &fakeChecker{}, dispatcher, sessions, "/tmp/repo",
		defaultMax, absoluteMax, &atomic.Bool{}, testLogger())
	a.reasoningTimeout = 250 * time.Millisecond
	a.toolTimeout = 250 * time.Millisecond
	a.finalTimeout = 250 * time.Millisecond
	return a, sessions
}

func toolCallLine(t *testing.T, tool string, params map[string]any) string {
	t.Helper()
	line, err := agent.NewToolCall(tool, params).Render()
	require.NoError(t, err)
	return line
}

func TestAgent_DirectAnswer(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"ready",
		"The retriever refines low-relevance queries before answering.",
	}}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{}
	a, sessions := newTestAgent(t, source, dispatcher, 3, 6)

	response, err := a.Query(context.Background(), "how does retrieval work?", "")
	require.NoError(t, err)

	assert.Contains(t, response, "The retriever refines low-relevance queries")
	assert.Contains(t, response, "Session ID: session_")
	assert.Empty(t, dispatcher.dispatched())
	assert.Equal(t, 1, sessions.Count())
	assert.Equal(t, []bool{true}, dispatcher.describes)
}

func TestAgent_DispatchesToolAndAnswers(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"ready",
		"I should look at the auth flow first.\n" +
			toolCallLine(t, "search_code", map[string]any{"query": "auth middleware"}),
		"Authentication is enforced by the chi middleware in router.go.",
	}}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{results: map[string]string{
		"search_code": "router.go: func AuthMiddleware(next http.Handler) http.Handler",
	}}
	a, sessions := newTestAgent(t, source, dispatcher, 3, 6)

	id, err := sessions.GetOrCreate("", "/tmp/repo")
	require.NoError(t, err)

	response, err := a.Query(context.Background(), "where is auth enforced?", id)
	require.NoError(t, err)

	calls := dispatcher.dispatched()
	require.Len(t, calls, 1)
	assert.Equal(t, "search_code", calls[0].name)
	assert.Equal(t, "auth middleware", calls[0].args["query"])
	assert.Equal(t, id, calls[0].args["sessionId"])

	// The tool result feeds the next reasoning prompt.
	assert.Contains(t, gen.prompt(2), "Tool search_code returned")
	assert.Contains(t, gen.prompt(2), "AuthMiddleware")

	assert.Contains(t, response, "enforced by the chi middleware")
	assert.Contains(t, response, "Session ID: "+id)
	assert.Equal(t, 1, sessions.Count())
}

func TestAgent_ReasoningTimeoutFallsBackToSearch(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{
			"ready",
			"never delivered",
			"Found the handler in sync.go.",
		},
		delays: map[int]time.Duration{1: time.Second},
	}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{results: map[string]string{
		"search_code": "sync.go: func (p *PeriodicSync) run(ctx context.Context)",
	}}
	a, sessions := newTestAgent(t, source, dispatcher, 3, 6)
	a.reasoningTimeout = 50 * time.Millisecond

	id, err := sessions.GetOrCreate("", "/tmp/repo")
	require.NoError(t, err)

	response, err := a.Query(context.Background(), "where is periodic sync?", id)
	require.NoError(t, err)

	calls := dispatcher.dispatched()
	require.Len(t, calls, 1)
	assert.Equal(t, "search_code", calls[0].name)
	assert.Equal(t, "where is periodic sync?", calls[0].args["query"])
	assert.Equal(t, id, calls[0].args["sessionId"])
	assert.Contains(t, response, "Found the handler in sync.go.")
}

func TestAgent_ModelUnavailableProducesFallbackSummary(t *testing.T) {
	source := &fakeGeneratorSource{err: errors.New("no provider configured")}
	dispatcher := &fakeDispatcher{results: map[string]string{
		"search_code": "match in indexer.go",
	}}
	a, _ := newTestAgent(t, source, dispatcher, 2, 4)

	response, err := a.Query(context.Background(), "what indexes files?", "")
	require.NoError(t, err)

	// Every budgeted step fell back to a search; the summary is built
	// from their results.
	assert.Len(t, dispatcher.dispatched(), 2)
	assert.Contains(t, response, "could not produce a final answer")
	assert.Contains(t, response, "search_code")
	assert.Contains(t, response, "match in indexer.go")
	assert.Contains(t, response, "Session ID: session_")
	assert.NotContains(t, response, AbsoluteMaxNote)
	assert.Equal(t, []bool{false}, dispatcher.describes)
}

func TestAgent_StepBudgetExtension(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"ready",
		"Need more budget to finish.\n" +
			toolCallLine(t, "request_more_processing_steps", map[string]any{}),
		"Now searching.\n" +
			toolCallLine(t, "search_code", map[string]any{"query": "worker pool"}),
		"The worker pool lives in worker.go.",
	}}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{results: map[string]string{
		"request_more_processing_steps": "Step budget raised.",
		"search_code":                   "worker.go: pool",
	}}
	a, _ := newTestAgent(t, source, dispatcher, 1, 3)

	response, err := a.Query(context.Background(), "how do workers run?", "")
	require.NoError(t, err)

	calls := dispatcher.dispatched()
	require.Len(t, calls, 2)
	assert.Equal(t, "request_more_processing_steps", calls[0].name)
	assert.Equal(t, "search_code", calls[1].name)
	assert.Contains(t, response, "The worker pool lives in worker.go.")
	assert.NotContains(t, response, AbsoluteMaxNote)
}

func TestAgent_AbsoluteCapAppendsNote(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"ready",
		toolCallLine(t, "search_code", map[string]any{"query": "first"}),
		toolCallLine(t, "search_code", map[string]any{"query": "second"}),
		"Summary of both searches.",
	}}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{}
	a, _ := newTestAgent(t, source, dispatcher, 2, 2)

	response, err := a.Query(context.Background(), "broad question", "")
	require.NoError(t, err)

	assert.Len(t, dispatcher.dispatched(), 2)
	assert.Contains(t, response, "Summary of both searches.")
	assert.Contains(t, response, AbsoluteMaxNote)
}

func TestAgent_FinalResponseTimeoutUsesStepPreviews(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{
			"ready",
			toolCallLine(t, "search_code", map[string]any{"query": "config"}),
			"never delivered",
		},
		delays: map[int]time.Duration{2: time.Second},
	}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{results: map[string]string{
		"search_code": "config.go: envconfig.Process",
	}}
	a, _ := newTestAgent(t, source, dispatcher, 1, 2)
	a.finalTimeout = 50 * time.Millisecond

	response, err := a.Query(context.Background(), "how is config loaded?", "")
	require.NoError(t, err)

	assert.Contains(t, response, "could not produce a final answer")
	assert.Contains(t, response, "1. search_code: config.go: envconfig.Process")
}

func TestAgent_ToolFailureIsRecordedAndLoopContinues(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"ready",
		toolCallLine(t, "get_changelog", map[string]any{}),
		"No changelog is tracked in this repository.",
	}}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{errs: map[string]error{
		"get_changelog": errors.New("changelog read failed"),
	}}
	a, _ := newTestAgent(t, source, dispatcher, 3, 6)

	response, err := a.Query(context.Background(), "what changed recently?", "")
	require.NoError(t, err)

	assert.Contains(t, gen.prompt(2), "Tool get_changelog failed")
	assert.Contains(t, response, "No changelog is tracked")
}

func TestAgent_HungToolIsAbandoned(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"ready",
		toolCallLine(t, "search_code", map[string]any{"query": "slow"}),
		"Answer without the slow tool.",
	}}
	source := &fakeGeneratorSource{gen: gen, available: true}
	dispatcher := &fakeDispatcher{delays: map[string]time.Duration{
		"search_code": time.Second,
	}}
	a, _ := newTestAgent(t, source, dispatcher, 3, 6)
	a.toolTimeout = 50 * time.Millisecond

	start := time.Now()
	response, err := a.Query(context.Background(), "anything", "")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, gen.prompt(2), "Tool search_code failed")
	assert.Contains(t, response, "Answer without the slow tool.")
}

func TestAgent_PersistsSuggestionOnSession(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"ready", "Done."}}
	source := &fakeGeneratorSource{gen: gen, available: true}
	a, sessions := newTestAgent(t, source, &fakeDispatcher{}, 2, 4)

	id, err := sessions.GetOrCreate("", "/tmp/repo")
	require.NoError(t, err)

	_, err = a.Query(context.Background(), "q", id)
	require.NoError(t, err)

	// Feedback attaches to the latest suggestion, so the run must have
	// recorded one.
	require.NoError(t, sessions.AddFeedback(id, "helpful"))
}

func TestAgent_Closed(t *testing.T) {
	closed := &atomic.Bool{}
	closed.Store(true)
	sessions := NewSessionStore(testLogger())
	a := NewAgent(&fakeGeneratorSource{}, &fakeChecker{}, &fakeDispatcher{}, sessions,
		"/tmp/repo", 2, 4, closed, testLogger())

	_, err := a.Query(context.Background(), "q", "")
	assert.ErrorIs(t, err, ErrClientClosed)
}
