// Package agent provides the agent loop's domain types: tool call
// parsing and per-run state.
package agent

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// CallMarker prefixes a line in model output that requests a tool
// dispatch. The remainder of the line is a JSON object with a "tool"
// string and a "parameters" object.
const CallMarker = "TOOL_CALL:"

// ToolCall is one tool dispatch requested by the model.
type ToolCall struct {
	tool       string
	parameters map[string]any
}

// NewToolCall creates a new ToolCall.
func NewToolCall(tool string, parameters map[string]any) ToolCall {
	return ToolCall{
		tool:       tool,
		parameters: maps.Clone(parameters),
	}
}

// Tool returns the requested tool name.
func (c ToolCall) Tool() string { return c.tool }

// Parameters returns the tool parameters.
func (c ToolCall) Parameters() map[string]any {
	return maps.Clone(c.parameters)
}

// IsZero returns true if no tool is named.
func (c ToolCall) IsZero() bool { return c.tool == "" }

// callWire is the JSON shape of a tool call line.
type callWire struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// Render returns the call as a single TOOL_CALL line.
func (c ToolCall) Render() (string, error) {
	params := c.parameters
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(callWire{Tool: c.tool, Parameters: params})
	if err != nil {
		return "", fmt.Errorf("render tool call: %w", err)
	}
	return CallMarker + " " + string(data), nil
}

// ParseToolCall scans model output for the first TOOL_CALL line and
// decodes it. The second return is false when the output contains no
// TOOL_CALL line at all; a line that is present but malformed returns
// an error so the caller can surface it to the model.
func ParseToolCall(output string) (ToolCall, bool, error) {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, CallMarker) {
			continue
		}
		body := strings.TrimSpace(strings.TrimPrefix(trimmed, CallMarker))
		var wire callWire
		if err := json.Unmarshal([]byte(body), &wire); err != nil {
			return ToolCall{}, true, fmt.Errorf("parse tool call %q: %w", body, err)
		}
		if wire.Tool == "" {
			return ToolCall{}, true, fmt.Errorf("parse tool call %q: missing tool name", body)
		}
		if wire.Parameters == nil {
			wire.Parameters = map[string]any{}
		}
		return NewToolCall(wire.Tool, wire.Parameters), true, nil
	}
	return ToolCall{}, false, nil
}

// ParseToolCalls scans model output for every TOOL_CALL line and
// decodes the well-formed ones in order. Malformed lines are skipped;
// the caller treats an output with markers but no accepted calls the
// same as one with a single malformed call.
func ParseToolCalls(output string) []ToolCall {
	var calls []ToolCall
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, CallMarker) {
			continue
		}
		body := strings.TrimSpace(strings.TrimPrefix(trimmed, CallMarker))
		var wire callWire
		if err := json.Unmarshal([]byte(body), &wire); err != nil {
			continue
		}
		if wire.Tool == "" {
			continue
		}
		if wire.Parameters == nil {
			wire.Parameters = map[string]any{}
		}
		calls = append(calls, NewToolCall(wire.Tool, wire.Parameters))
	}
	return calls
}

// StripToolCalls returns output with all TOOL_CALL lines removed, for
// use as reasoning or final-answer text.
func StripToolCalls(output string) string {
	lines := strings.Split(output, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), CallMarker) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
