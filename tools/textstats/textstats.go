// Package textstats provides the analyze_text and count_sentences tools.
package textstats

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/pkg/schema"
	"github.com/effective-security/textanalyzer/textstats"
	"github.com/effective-security/textanalyzer/tools"
	"github.com/invopop/jsonschema"
)

const (
	// AnalyzeTextToolName is the name of the word and character count tool
	AnalyzeTextToolName = "analyze_text"
	// CountSentencesToolName is the name of the sentence count tool
	CountSentencesToolName = "count_sentences"
)

// TextRequest represents the tool input.
type TextRequest struct {
	Text string `json:"text" yaml:"text" jsonschema:"title=Text,description=The text to analyze."`
}

// AnalyzeTextTool counts words and characters
type AnalyzeTextTool struct {
	name        string
	description string
	funcParams  *jsonschema.Schema
}

// CountSentencesTool counts sentences
type CountSentencesTool struct {
	name        string
	description string
	funcParams  *jsonschema.Schema
}

var (
	_ tools.Tool[TextRequest, textstats.Analysis]      = (*AnalyzeTextTool)(nil)
	_ tools.Tool[TextRequest, textstats.SentenceCount] = (*CountSentencesTool)(nil)
)

func textParams() (*jsonschema.Schema, error) {
	sc, err := schema.For[TextRequest]()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return sc.Parameters, nil
}

// NewAnalyzeText returns the analyze_text tool
func NewAnalyzeText() (*AnalyzeTextTool, error) {
	params, err := textParams()
	if err != nil {
		return nil, err
	}
	return &AnalyzeTextTool{
		name:        AnalyzeTextToolName,
		description: "Analyzes the provided text and returns the word count and the character count.",
		funcParams:  params,
	}, nil
}

func (t *AnalyzeTextTool) Name() string {
	return t.name
}

func (t *AnalyzeTextTool) Description() string {
	return t.description
}

func (t *AnalyzeTextTool) Parameters() *jsonschema.Schema {
	return t.funcParams
}

func (t *AnalyzeTextTool) Run(_ context.Context, req *TextRequest) (*textstats.Analysis, error) {
	res := textstats.AnalyzeText(req.Text)
	return &res, nil
}

func (t *AnalyzeTextTool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallJSON[TextRequest, textstats.Analysis](ctx, t, input)
}

// NewCountSentences returns the count_sentences tool
func NewCountSentences() (*CountSentencesTool, error) {
	params, err := textParams()
	if err != nil {
		return nil, err
	}
	return &CountSentencesTool{
		name:        CountSentencesToolName,
		description: "Counts the number of sentences in the provided text. Sentences end with '.', '!' or '?'.",
		funcParams:  params,
	}, nil
}

func (t *CountSentencesTool) Name() string {
	return t.name
}

func (t *CountSentencesTool) Description() string {
	return t.description
}

func (t *CountSentencesTool) Parameters() *jsonschema.Schema {
	return t.funcParams
}

func (t *CountSentencesTool) Run(_ context.Context, req *TextRequest) (*textstats.SentenceCount, error) {
	res := textstats.CountSentences(req.Text)
	return &res, nil
}

func (t *CountSentencesTool) Call(ctx context.Context, input string) (string, error) {
	return tools.CallJSON[TextRequest, textstats.SentenceCount](ctx, t, input)
}

// All returns the tools of this package
func All() ([]tools.ITool, error) {
	analyze, err := NewAnalyzeText()
	if err != nil {
		return nil, err
	}
	sentences, err := NewCountSentences()
	if err != nil {
		return nil, err
	}
	return []tools.ITool{analyze, sentences}, nil
}

// NewRegistry returns a Registry with all text tools
func NewRegistry() (*tools.Registry, error) {
	list, err := All()
	if err != nil {
		return nil, err
	}
	return tools.NewRegistry(list...)
}
