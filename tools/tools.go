package tools

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/pkg/llmutils"
	"github.com/invopop/jsonschema"
)

// ITool is a named function the language model can ask to run.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the input schema of the tool.
	Parameters() *jsonschema.Schema

	// Call executes the tool with the given JSON input and returns JSON result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// Tool is a typed ITool
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// Callback receives tool execution events
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input string, output string)
	OnToolError(ctx context.Context, tool ITool, input string, err error)
}

// Descriptor advertises a tool: name, description and input schema.
type Descriptor struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty" yaml:"-"`
}

// Describe returns the Descriptor of the tool
func Describe(t ITool) Descriptor {
	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Parameters(),
	}
}

// CallJSON decodes the JSON input into I, runs the tool and
// returns the JSON encoded output.
func CallJSON[I any, O any](ctx context.Context, t Tool[I, O], input string) (string, error) {
	var req I
	if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &req); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "tool %q: failed to unmarshal input", t.Name()), chatmodel.ErrFailedUnmarshalInput)
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrapf(err, "tool %q: failed to marshal output", t.Name())
	}
	return string(bs), nil
}
