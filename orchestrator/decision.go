package orchestrator

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/pkg/llms"
)

// Decision is what the model chose to do with a query:
// DirectAnswer or ToolCall.
type Decision interface {
	isDecision()
}

// DirectAnswer is a final text answer from the model
type DirectAnswer struct {
	Text string
}

// ToolCall is a request from the model to invoke a tool
type ToolCall struct {
	chatmodel.ToolCall
}

func (DirectAnswer) isDecision() {}
func (ToolCall) isDecision()     {}

// Catalog reports whether a tool is available
type Catalog interface {
	HasTool(name string) bool
}

// ParseDecision converts the model response to a Decision.
// When the response has tool calls, the first one is used.
//
// A tool call naming a tool not in the catalog fails with ErrUnknownTool,
// arguments that are not a JSON object fail with ErrInvalidArguments;
// in both cases the ToolCall decision is returned along with the error
// so the failure can be reported back to the model.
func ParseDecision(resp *llms.ContentResponse, catalog Catalog) (Decision, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.Mark(errors.New("model returned empty response with no choices"), chatmodel.ErrModelAPI)
	}

	for _, choice := range resp.Choices {
		if choice == nil || len(choice.ToolCalls) == 0 {
			continue
		}
		call, err := chatmodel.ParseToolCall(choice.ToolCalls[0])
		decision := ToolCall{ToolCall: call}
		if err != nil {
			return decision, err
		}
		if catalog == nil || !catalog.HasTool(call.Name) {
			return decision, errors.Mark(errors.Newf("unknown tool %q", call.Name), chatmodel.ErrUnknownTool)
		}
		return decision, nil
	}

	return DirectAnswer{Text: responseText(resp)}, nil
}

// responseText joins the text of all choices
func responseText(resp *llms.ContentResponse) string {
	var parts []string
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		if text := strings.TrimSpace(choice.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
