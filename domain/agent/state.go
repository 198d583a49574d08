package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Step is one completed loop iteration: the model's reasoning, the tool
// it dispatched (if any), and what came back.
type Step struct {
	reasoning string
	call      ToolCall
	hasCall   bool
	result    string
	failure   string
}

// NewStep creates a Step for a dispatched tool call.
func NewStep(reasoning string, call ToolCall, result string) Step {
	return Step{
		reasoning: reasoning,
		call:      call,
		hasCall:   true,
		result:    result,
	}
}

// NewFailedStep creates a Step whose dispatch failed.
func NewFailedStep(reasoning string, call ToolCall, failure string) Step {
	return Step{
		reasoning: reasoning,
		call:      call,
		hasCall:   true,
		failure:   failure,
	}
}

// Reasoning returns the model's stated reasoning for the step.
func (s Step) Reasoning() string { return s.reasoning }

// Call returns the dispatched tool call.
func (s Step) Call() (ToolCall, bool) { return s.call, s.hasCall }

// Result returns the tool result text.
func (s Step) Result() string { return s.result }

// Failure returns the dispatch error text ("" on success).
func (s Step) Failure() string { return s.failure }

// State tracks one agent run: the accumulated working context, the
// steps taken, and the step budget. It is confined to the goroutine
// running the loop.
type State struct {
	query           string
	contextParts    []string
	steps           []Step
	currentMaxSteps int
	absoluteMax     int
}

// NewState creates run state for a query with the given step budgets.
// absoluteMax below defaultMax is raised to defaultMax.
func NewState(query string, defaultMax, absoluteMax int) *State {
	if defaultMax < 1 {
		defaultMax = 1
	}
	if absoluteMax < defaultMax {
		absoluteMax = defaultMax
	}
	return &State{
		query:           query,
		currentMaxSteps: defaultMax,
		absoluteMax:     absoluteMax,
	}
}

// Query returns the user query the run answers.
func (s *State) Query() string { return s.query }

// StepCount returns how many steps have completed.
func (s *State) StepCount() int { return len(s.steps) }

// MaxSteps returns the current step budget.
func (s *State) MaxSteps() int { return s.currentMaxSteps }

// AbsoluteMaxSteps returns the hard step cap.
func (s *State) AbsoluteMaxSteps() int { return s.absoluteMax }

// CanContinue returns true while the budget allows another step.
func (s *State) CanContinue() bool {
	return len(s.steps) < s.currentMaxSteps
}

// BudgetExhausted returns true once every budgeted step was used.
func (s *State) BudgetExhausted() bool {
	return len(s.steps) >= s.currentMaxSteps
}

// ExtendBudget raises the step budget by n, capped at the absolute
// maximum, and returns the new budget. n below 1 counts as 1.
func (s *State) ExtendBudget(n int) int {
	if n < 1 {
		n = 1
	}
	s.currentMaxSteps += n
	if s.currentMaxSteps > s.absoluteMax {
		s.currentMaxSteps = s.absoluteMax
	}
	return s.currentMaxSteps
}

// AddStep records a completed step.
func (s *State) AddStep(step Step) {
	s.steps = append(s.steps, step)
}

// Steps returns the completed steps in order.
func (s *State) Steps() []Step {
	result := make([]Step, len(s.steps))
	copy(result, s.steps)
	return result
}

// AppendContext adds a block to the working context.
func (s *State) AppendContext(part string) {
	if strings.TrimSpace(part) == "" {
		return
	}
	s.contextParts = append(s.contextParts, part)
}

// ContextText returns the accumulated working context, blocks separated
// by blank lines.
func (s *State) ContextText() string {
	return strings.Join(s.contextParts, "\n\n")
}

// Transcript renders the completed steps for inclusion in a prompt.
func (s *State) Transcript() string {
	var b strings.Builder
	for i, step := range s.steps {
		fmt.Fprintf(&b, "Step %d:\n", i+1)
		if step.reasoning != "" {
			fmt.Fprintf(&b, "Reasoning: %s\n", step.reasoning)
		}
		if call, ok := step.Call(); ok {
			fmt.Fprintf(&b, "Tool: %s\n", call.Tool())
			if len(call.Parameters()) > 0 {
				fmt.Fprintf(&b, "Parameters: %v\n", formatParameters(call.Parameters()))
			}
		}
		if step.failure != "" {
			fmt.Fprintf(&b, "Error: %s\n", step.failure)
		} else if step.result != "" {
			fmt.Fprintf(&b, "Result: %s\n", step.result)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// formatParameters renders parameters with deterministic key order.
func formatParameters(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}
