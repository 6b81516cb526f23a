package chatmodel

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/pkg/llms"
)

// ToolCall is a request to invoke a named tool with arguments.
type ToolCall struct {
	// ID correlates the call with its result
	ID string `json:"id,omitempty"`
	// Name of the tool
	Name string `json:"name"`
	// Arguments is the JSON object of tool arguments
	Arguments map[string]any `json:"arguments"`
}

// ArgumentsJSON returns Arguments as JSON object
func (c ToolCall) ArgumentsJSON() string {
	if c.Arguments == nil {
		return "{}"
	}
	js, _ := json.Marshal(c.Arguments)
	return string(js)
}

// ToLLM returns the llms representation of the call
func (c ToolCall) ToLLM() llms.ToolCall {
	return llms.ToolCall{
		ID:   c.ID,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      c.Name,
			Arguments: c.ArgumentsJSON(),
		},
	}
}

// ParseToolCall converts the tool call returned by a model.
// Arguments that are not a JSON object fail with ErrInvalidArguments.
func ParseToolCall(tc llms.ToolCall) (ToolCall, error) {
	if tc.FunctionCall == nil {
		return ToolCall{}, errors.Wrap(ErrInvalidArguments, "tool call without function")
	}
	call := ToolCall{
		ID:        tc.ID,
		Name:      tc.FunctionCall.Name,
		Arguments: map[string]any{},
	}
	if tc.FunctionCall.Arguments != "" && tc.FunctionCall.Arguments != "null" {
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &call.Arguments); err != nil {
			return call, errors.Mark(errors.Wrapf(err, "tool %q: arguments must be a JSON object", call.Name), ErrInvalidArguments)
		}
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return call, nil
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	// IsError is set when Content describes a failure
	IsError bool `json:"is_error,omitempty"`
}

// NewToolError returns an error-bearing result for the call
func NewToolError(call ToolCall, err error) ToolResult {
	return ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    "Error: " + err.Error(),
		IsError:    true,
	}
}

// ToLLM returns the llms representation of the result
func (r ToolResult) ToLLM() llms.ToolCallResponse {
	return llms.ToolCallResponse{
		ToolCallID: r.ToolCallID,
		Name:       r.Name,
		Content:    r.Content,
		IsError:    r.IsError,
	}
}

// Turn is the ordered list of messages exchanged for one user query.
type Turn struct {
	messages []llms.Message
}

// NewTurn starts a turn with optional system prompt and the user query
func NewTurn(systemPrompt, query string) *Turn {
	t := &Turn{}
	if systemPrompt != "" {
		t.messages = append(t.messages, llms.MessageFromTextParts(llms.RoleSystem, systemPrompt))
	}
	t.messages = append(t.messages, llms.MessageFromTextParts(llms.RoleHuman, query))
	return t
}

// AddToolCall appends the model request to call a tool
func (t *Turn) AddToolCall(call ToolCall) {
	t.messages = append(t.messages, llms.MessageFromToolCalls(llms.RoleAI, call.ToLLM()))
}

// AddToolResult appends the tool result
func (t *Turn) AddToolResult(res ToolResult) {
	t.messages = append(t.messages, llms.MessageFromToolResponse(llms.RoleTool, res.ToLLM()))
}

// AddAnswer appends the model text answer
func (t *Turn) AddAnswer(text string) {
	t.messages = append(t.messages, llms.MessageFromTextParts(llms.RoleAI, text))
}

// Messages returns a copy of the messages
func (t *Turn) Messages() []llms.Message {
	return append([]llms.Message(nil), t.messages...)
}

// Len returns the number of messages
func (t *Turn) Len() int {
	return len(t.messages)
}
