package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codecompass/codecompass/domain/agent"
	"github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/domain/session"
)

// Per-call time budgets for one agent iteration.
const (
	reasoningTimeout     = 60 * time.Second
	toolCallTimeout      = 90 * time.Second
	finalResponseTimeout = 60 * time.Second
)

// AbsoluteMaxNote is appended to the response when a run consumed the
// absolute step cap.
const AbsoluteMaxNote = "[Note: The agent utilized the maximum allowed processing steps.]"

// Tool names the loop itself depends on.
const (
	fallbackToolName      = "search_code"
	stepExtensionToolName = "request_more_processing_steps"
)

// resultPreviewLimit caps how much of a tool result is fed back into
// the next reasoning prompt.
const resultPreviewLimit = 1500

// ToolDispatcher executes registered tools on behalf of the agent.
type ToolDispatcher interface {
	// Dispatch executes the named tool with the given arguments and
	// returns its textual result.
	Dispatch(ctx context.Context, name string, args map[string]any) (string, error)

	// Describe renders the tools available to the agent, excluding
	// model-gated entries when no suggestion model is available.
	Describe(modelAvailable bool) string
}

// Agent runs a bounded tool-dispatch loop over the suggestion model.
// Reasoning, tool, and final-response calls each carry their own
// timeout; a timed-out call is abandoned and the loop proceeds with a
// fallback.
type Agent struct {
	generators service.TextGeneratorSource
	checker    service.ConnectionChecker
	tools      ToolDispatcher
	sessions   *SessionStore
	repoPath   string
	defaultMax int
	absoluteMax int
	closed     *atomic.Bool
	logger     *slog.Logger

	reasoningTimeout time.Duration
	toolTimeout      time.Duration
	finalTimeout     time.Duration
	now              func() time.Time
}

// NewAgent creates a new Agent.
func NewAgent(
	generators service.TextGeneratorSource,
	checker service.ConnectionChecker,
	tools ToolDispatcher,
	sessions *SessionStore,
	repoPath string,
	defaultMaxSteps int,
	absoluteMaxSteps int,
	closed *atomic.Bool,
	logger *slog.Logger,
) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		generators:       generators,
		checker:          checker,
		tools:            tools,
		sessions:         sessions,
		repoPath:         repoPath,
		defaultMax:       defaultMaxSteps,
		absoluteMax:      absoluteMaxSteps,
		closed:           closed,
		logger:           logger,
		reasoningTimeout: reasoningTimeout,
		toolTimeout:      toolCallTimeout,
		finalTimeout:     finalResponseTimeout,
		now:              time.Now,
	}
}

// Query answers a question by looping over reasoning and tool dispatch
// until the model produces a final answer or the step budget runs out.
// The response ends with the session ID so follow-ups can continue the
// conversation.
func (a *Agent) Query(ctx context.Context, query, sessionID string) (string, error) {
	if a.closed != nil && a.closed.Load() {
		return "", ErrClientClosed
	}

	a.warmUp(ctx)

	id, err := a.sessions.GetOrCreate(sessionID, a.repoPath)
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}

	modelAvailable := a.generators.SuggestionAvailable(ctx)
	systemPrompt := a.systemPrompt(modelAvailable)

	state := agent.NewState(query, a.defaultMax, a.absoluteMax)
	var finalResponse string
	hitAbsoluteMax := false

	for {
		if state.StepCount() >= state.AbsoluteMaxSteps() {
			hitAbsoluteMax = true
			break
		}
		if state.BudgetExhausted() {
			break
		}

		output, reasonErr := a.reason(ctx, systemPrompt, a.stepPrompt(state, id))

		var calls []agent.ToolCall
		var reasoning string
		if reasonErr != nil {
			a.logger.Warn("agent reasoning unavailable, falling back to code search",
				"step", state.StepCount()+1, "error", reasonErr)
			reasoning = "Reasoning unavailable; searching the codebase for the original question."
			calls = []agent.ToolCall{agent.NewToolCall(fallbackToolName, map[string]any{
				"query":     query,
				"sessionId": id,
			})}
		} else {
			reasoning = agent.StripToolCalls(output)
			calls = agent.ParseToolCalls(output)
			if len(calls) == 0 {
				finalResponse = strings.TrimSpace(output)
				break
			}
		}

		for _, call := range calls {
			if call.Tool() == stepExtensionToolName && state.MaxSteps() < state.AbsoluteMaxSteps() {
				state.ExtendBudget(state.AbsoluteMaxSteps() - state.MaxSteps())
				a.logger.Info("agent step budget extended", "max_steps", state.MaxSteps())
			}

			result, dispatchErr := a.dispatch(ctx, call, id)
			var step agent.Step
			if dispatchErr != nil {
				a.logger.Warn("agent tool dispatch failed",
					"tool", call.Tool(), "error", dispatchErr)
				step = agent.NewFailedStep(reasoning, call, dispatchErr.Error())
				state.AppendContext(fmt.Sprintf("Tool %s failed: %v", call.Tool(), dispatchErr))
			} else {
				step = agent.NewStep(reasoning, call, result)
				state.AppendContext(fmt.Sprintf("Tool %s returned:\n%s",
					call.Tool(), preview(result, resultPreviewLimit)))
			}
			state.AddStep(step)
		}
	}

	if finalResponse == "" {
		finalResponse = a.finalResponse(ctx, systemPrompt, state)
	}
	if hitAbsoluteMax {
		finalResponse = strings.TrimSpace(finalResponse) + "\n\n" + AbsoluteMaxNote
	}

	a.persist(id, query, finalResponse, state)

	return fmt.Sprintf("%s\n\n---\nSession ID: %s", finalResponse, id), nil
}

// warmUp verifies the provider connection and primes the model.
// Failures are logged, never fatal: the loop degrades to fallback
// searches without a model.
func (a *Agent) warmUp(ctx context.Context) {
	if a.checker != nil {
		if err := a.checker.CheckConnection(ctx); err != nil {
			a.logger.Warn("provider connection check failed", "error", err)
		}
	}

	gen, err := a.generators.SuggestionGenerator(ctx)
	if err != nil {
		a.logger.Warn("suggestion model unavailable for warm-up", "error", err)
		return
	}
	if _, err := a.generate(ctx, a.reasoningTimeout, gen, "", "Reply with the single word: ready"); err != nil {
		a.logger.Warn("model warm-up failed", "error", err)
	}
}

// reason asks the model for the next step under the reasoning timeout.
func (a *Agent) reason(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	gen, err := a.generators.SuggestionGenerator(ctx)
	if err != nil {
		return "", err
	}
	return a.generate(ctx, a.reasoningTimeout, gen, systemPrompt, userPrompt)
}

// dispatch executes one tool call under the tool timeout. The session
// ID is injected so every tool works against the same conversation.
func (a *Agent) dispatch(ctx context.Context, call agent.ToolCall, sessionID string) (string, error) {
	args := call.Parameters()
	if args == nil {
		args = map[string]any{}
	}
	if _, ok := args["sessionId"]; !ok {
		args["sessionId"] = sessionID
	}

	dctx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := a.tools.Dispatch(dctx, call.Tool(), args)
		ch <- outcome{result, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-dctx.Done():
		return "", fmt.Errorf("tool %s: %w", call.Tool(), dctx.Err())
	}
}

// finalResponse asks the model to answer from the gathered steps; on
// timeout or error it synthesizes a summary from step previews.
func (a *Agent) finalResponse(ctx context.Context, systemPrompt string, state *agent.State) string {
	gen, err := a.generators.SuggestionGenerator(ctx)
	if err == nil {
		var b strings.Builder
		fmt.Fprintf(&b, "Question: %s\n\n", state.Query())
		if transcript := state.Transcript(); transcript != "" {
			b.WriteString("Tool activity so far:\n")
			b.WriteString(transcript)
			b.WriteString("\n\n")
		}
		b.WriteString("Summarize what you have learned and answer the question. Do not request any more tools.")

		response, genErr := a.generate(ctx, a.finalTimeout, gen, systemPrompt, b.String())
		if genErr == nil {
			return strings.TrimSpace(agent.StripToolCalls(response))
		}
		a.logger.Warn("final response generation failed", "error", genErr)
	} else {
		a.logger.Warn("suggestion model unavailable for final response", "error", err)
	}

	return fallbackSummary(state)
}

// generate runs one text generation, abandoning the in-flight call when
// the timeout expires.
func (a *Agent) generate(ctx context.Context, timeout time.Duration, gen service.TextGenerator, systemPrompt, userPrompt string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		text, err := gen.GenerateText(gctx, systemPrompt, userPrompt)
		ch <- outcome{text, err}
	}()

	select {
	case o := <-ch:
		return o.text, o.err
	case <-gctx.Done():
		return "", gctx.Err()
	}
}

// systemPrompt frames the loop protocol around the callable tools.
func (a *Agent) systemPrompt(modelAvailable bool) string {
	var b strings.Builder
	b.WriteString("You are a code intelligence agent answering questions about the repository at ")
	b.WriteString(a.repoPath)
	b.WriteString(".\n\n")
	b.WriteString("To gather information, emit one line per tool call in the form:\n")
	b.WriteString(agent.CallMarker)
	b.WriteString(` {"tool": "<name>", "parameters": {...}}`)
	b.WriteString("\n\nAvailable tools:\n")
	b.WriteString(a.tools.Describe(modelAvailable))
	b.WriteString("\nWhen you have enough information, answer directly without any ")
	b.WriteString(agent.CallMarker)
	b.WriteString(" line.")
	return b.String()
}

// stepPrompt renders the accumulated run context for the next
// reasoning call.
func (a *Agent) stepPrompt(state *agent.State, sessionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", state.Query())
	fmt.Fprintf(&b, "Session: %s\n", sessionID)
	fmt.Fprintf(&b, "Step %d of %d.\n", state.StepCount()+1, state.MaxSteps())
	if ctxText := state.ContextText(); ctxText != "" {
		b.WriteString("\nGathered so far:\n")
		b.WriteString(ctxText)
		b.WriteString("\n")
	}
	return b.String()
}

// persist records the run's steps and final response on the session.
func (a *Agent) persist(id, query, response string, state *agent.State) {
	steps := state.Steps()
	records := make([]session.AgentStep, 0, len(steps))
	for _, step := range steps {
		call, ok := step.Call()
		if !ok {
			continue
		}
		output := step.Result()
		if failure := step.Failure(); failure != "" {
			output = "error: " + failure
		}
		records = append(records, session.NewAgentStep(call.Tool(), call.Parameters(), output, step.Reasoning()))
	}
	if len(records) > 0 {
		if err := a.sessions.RecordAgentSteps(id, records); err != nil {
			a.logger.Warn("failed to record agent steps", "session_id", id, "error", err)
		}
	}

	record := session.NewSuggestionRecord(a.now(), query, response)
	if err := a.sessions.AddSuggestion(id, record); err != nil {
		a.logger.Warn("failed to record agent response", "session_id", id, "error", err)
	}
}

// fallbackSummary builds a final answer from step previews when the
// model cannot.
func fallbackSummary(state *agent.State) string {
	steps := state.Steps()
	if len(steps) == 0 {
		return "No answer could be generated: the model was unavailable and no tool results were gathered."
	}

	var b strings.Builder
	b.WriteString("The model could not produce a final answer in time. Findings from the steps taken:\n")
	for i, step := range steps {
		name := "(no tool)"
		if call, ok := step.Call(); ok {
			name = call.Tool()
		}
		body := step.Result()
		if failure := step.Failure(); failure != "" {
			body = "failed: " + failure
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, name, preview(body, 200))
	}
	return strings.TrimSpace(b.String())
}

// preview truncates text for prompt inclusion.
func preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
