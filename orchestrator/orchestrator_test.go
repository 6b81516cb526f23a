package orchestrator_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/mocks/mockllms"
	"github.com/effective-security/textanalyzer/mocks/mockorchestrator"
	"github.com/effective-security/textanalyzer/orchestrator"
	"github.com/effective-security/textanalyzer/pkg/llms"
	"github.com/effective-security/textanalyzer/tools"
	"github.com/effective-security/textanalyzer/tools/textstats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func descriptors(t *testing.T) []tools.Descriptor {
	t.Helper()
	list, err := textstats.All()
	require.NoError(t, err)
	var res []tools.Descriptor
	for _, tool := range list {
		res = append(res, tools.Describe(tool))
	}
	return res
}

func newMocks(t *testing.T) (*mockllms.MockModel, *mockorchestrator.MockToolInvoker) {
	ctrl := gomock.NewController(t)
	llm := mockllms.NewMockModel(ctrl)
	llm.EXPECT().GetName().Return("fake-model").AnyTimes()
	llm.EXPECT().GetProviderType().Return(llms.ProviderFake).AnyTimes()

	invoker := mockorchestrator.NewMockToolInvoker(ctrl)
	invoker.EXPECT().Tools().Return(descriptors(t)).AnyTimes()
	return llm, invoker
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: text, StopReason: "STOP"},
		},
	}
}

func toolResponse(name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "STOP",
				ToolCalls: []llms.ToolCall{
					{
						ID:   "call-1",
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      name,
							Arguments: args,
						},
					},
				},
			},
		},
	}
}

func callOptions(options []llms.CallOption) llms.CallOptions {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	return opts
}

type recorder struct {
	lock   sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnQueryStart(_ context.Context, query string) { r.add("query_start:" + query) }
func (r *recorder) OnQueryEnd(_ context.Context, query string, _ *orchestrator.Answer) {
	r.add("query_end:" + query)
}
func (r *recorder) OnQueryError(_ context.Context, query string, _ error) {
	r.add("query_error:" + query)
}
func (r *recorder) OnLLMCallStart(context.Context, llms.Model, []llms.Message) { r.add("llm_start") }
func (r *recorder) OnLLMCallEnd(context.Context, llms.Model, *llms.ContentResponse) {
	r.add("llm_end")
}
func (r *recorder) OnToolCall(_ context.Context, call chatmodel.ToolCall) {
	r.add("tool_call:" + call.Name)
}
func (r *recorder) OnToolResult(_ context.Context, res chatmodel.ToolResult) {
	r.add("tool_result:" + res.Name)
}
func (r *recorder) OnToolNotFound(_ context.Context, tool string) { r.add("tool_not_found:" + tool) }

func TestNew(t *testing.T) {
	llm, invoker := newMocks(t)

	_, err := orchestrator.New(nil, invoker)
	assert.EqualError(t, err, "model is required")
	_, err = orchestrator.New(llm, nil)
	assert.EqualError(t, err, "tool invoker is required")

	o, err := orchestrator.New(llm, invoker, orchestrator.WithModel("gemini-test"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", o.ModelName())
	assert.Len(t, o.Tools(), 2)

	ctrl := gomock.NewController(t)
	noTools := mockllms.NewMockModel(ctrl)
	noTools.EXPECT().GetName().Return("plain").AnyTimes()
	noTools.EXPECT().GetProviderType().Return(llms.ProviderType("PLAIN")).AnyTimes()
	_, err = orchestrator.New(noTools, invoker)
	assert.EqualError(t, err, "the plain model does not support function calling")
}

func TestAsk_DirectAnswer(t *testing.T) {
	llm, invoker := newMocks(t)
	rec := &recorder{}

	llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 2)
			assert.Equal(t, llms.RoleSystem, msgs[0].Role)
			assert.Equal(t, llms.RoleHuman, msgs[1].Role)
			assert.Equal(t, "What is the capital of France?", strings.TrimSpace(msgs[1].GetContent()))

			opts := callOptions(options)
			assert.Equal(t, "gemini-test", opts.Model)
			assert.Equal(t, 0.2, opts.Temperature)
			assert.Equal(t, 256, opts.MaxTokens)
			assert.Equal(t, llms.FunctionCallBehaviorAuto, opts.ToolChoice)
			assert.Equal(t, 1, opts.CandidateCount)
			assert.Equal(t, 0.9, opts.TopP)
			assert.Equal(t, []string{"STOP"}, opts.StopWords)
			assert.Equal(t, 0, opts.TopK)
			require.Len(t, opts.Tools, 2)
			assert.Equal(t, textstats.AnalyzeTextToolName, opts.Tools[0].Function.Name)
			assert.Equal(t, textstats.CountSentencesToolName, opts.Tools[1].Function.Name)
			require.NotNil(t, opts.Tools[0].Function.Parameters)
			return textResponse("Paris."), nil
		}).Times(1)

	o, err := orchestrator.New(llm, invoker,
		orchestrator.WithModel("gemini-test"),
		orchestrator.WithTemperature(0.2),
		orchestrator.WithMaxTokens(256),
		orchestrator.WithTopP(0.9),
		orchestrator.WithStopWords([]string{"STOP"}),
		orchestrator.WithSystemPrompt("You are a helpful assistant."),
		orchestrator.WithCallback(rec),
	)
	require.NoError(t, err)

	ctx := chatmodel.WithQueryContext(context.Background(), chatmodel.NewQueryContext("q1"))
	answer, err := o.Ask(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "q1", answer.QueryID)
	assert.Equal(t, "Paris.", answer.Text)
	assert.True(t, answer.HasText())
	assert.Equal(t, orchestrator.RouteDirect, answer.Route)
	assert.Nil(t, answer.ToolCall)
	assert.Nil(t, answer.ToolResult)
	assert.Len(t, answer.Messages, 3)
	assert.Equal(t, []orchestrator.State{
		orchestrator.StateAwaitingQuery,
		orchestrator.StateModelDeciding,
		orchestrator.StateDirectAnswer,
		orchestrator.StateDone,
		orchestrator.StateAwaitingQuery,
	}, answer.States)
	assert.Equal(t, []string{
		"query_start:What is the capital of France?",
		"llm_start",
		"llm_end",
		"query_end:What is the capital of France?",
	}, rec.events)
}

func TestAsk_ToolCall(t *testing.T) {
	llm, invoker := newMocks(t)
	rec := &recorder{}

	gomock.InOrder(
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolResponse(textstats.CountSentencesToolName, `{"text":"The cat sat. It was happy!"}`), nil),
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msgs []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 3)
				assert.Equal(t, llms.RoleHuman, msgs[0].Role)
				assert.Equal(t, llms.RoleAI, msgs[1].Role)
				assert.Equal(t, llms.RoleTool, msgs[2].Role)

				tc, ok := msgs[1].Parts[0].(llms.ToolCall)
				require.True(t, ok)
				assert.Equal(t, "call-1", tc.ID)
				assert.Equal(t, textstats.CountSentencesToolName, tc.FunctionCall.Name)
				assert.JSONEq(t, `{"text":"The cat sat. It was happy!"}`, tc.FunctionCall.Arguments)

				resp, ok := msgs[2].Parts[0].(llms.ToolCallResponse)
				require.True(t, ok)
				assert.Equal(t, "call-1", resp.ToolCallID)
				assert.False(t, resp.IsError)
				assert.JSONEq(t, `{"sentence_count":2}`, resp.Content)

				assert.Len(t, callOptions(options).Tools, 2)
				return textResponse("The text has 2 sentences."), nil
			}),
	)

	invoker.EXPECT().HasTool(textstats.CountSentencesToolName).Return(true)
	invoker.EXPECT().CallTool(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, call chatmodel.ToolCall) (chatmodel.ToolResult, error) {
			assert.Equal(t, "The cat sat. It was happy!", call.Arguments["text"])
			return chatmodel.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    "{\n  \"sentence_count\": 2\n}",
			}, nil
		}).Times(1)

	o, err := orchestrator.New(llm, invoker, orchestrator.WithCallback(rec))
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), "How many sentences are in 'The cat sat. It was happy!'?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.QueryID)
	assert.Equal(t, "The text has 2 sentences.", answer.Text)
	assert.Equal(t, orchestrator.RouteTool, answer.Route)
	require.NotNil(t, answer.ToolCall)
	assert.Equal(t, textstats.CountSentencesToolName, answer.ToolCall.Name)
	require.NotNil(t, answer.ToolResult)
	assert.False(t, answer.ToolResult.IsError)
	assert.Len(t, answer.Messages, 4)
	assert.Equal(t, []orchestrator.State{
		orchestrator.StateAwaitingQuery,
		orchestrator.StateModelDeciding,
		orchestrator.StateToolCall,
		orchestrator.StateToolExecuting,
		orchestrator.StateModelFinalizing,
		orchestrator.StateDone,
		orchestrator.StateAwaitingQuery,
	}, answer.States)
	assert.Contains(t, rec.events, "tool_call:count_sentences")
	assert.Contains(t, rec.events, "tool_result:count_sentences")
}

func TestAsk_UnknownTool(t *testing.T) {
	llm, invoker := newMocks(t)
	rec := &recorder{}

	gomock.InOrder(
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolResponse("translate", `{"text":"hola"}`), nil),
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, msgs, 3)
				resp, ok := msgs[2].Parts[0].(llms.ToolCallResponse)
				require.True(t, ok)
				assert.True(t, resp.IsError)
				assert.Equal(t, `Error: unknown tool "translate"`, resp.Content)
				return textResponse("I can not translate text."), nil
			}),
	)
	invoker.EXPECT().HasTool("translate").Return(false)

	o, err := orchestrator.New(llm, invoker, orchestrator.WithCallback(rec))
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), "Translate hola")
	require.NoError(t, err)
	assert.Equal(t, "I can not translate text.", answer.Text)
	require.NotNil(t, answer.ToolResult)
	assert.True(t, answer.ToolResult.IsError)
	assert.NotContains(t, answer.States, orchestrator.StateToolExecuting)
	assert.Contains(t, rec.events, "tool_not_found:translate")
}

func TestAsk_InvalidArguments(t *testing.T) {
	llm, invoker := newMocks(t)

	gomock.InOrder(
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolResponse(textstats.AnalyzeTextToolName, `not json`), nil),
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				resp, ok := msgs[2].Parts[0].(llms.ToolCallResponse)
				require.True(t, ok)
				assert.True(t, resp.IsError)
				assert.Contains(t, resp.Content, "arguments must be a JSON object")
				return textResponse("Sorry, I could not analyze the text."), nil
			}),
	)

	o, err := orchestrator.New(llm, invoker)
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), "Analyze this")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I could not analyze the text.", answer.Text)
	assert.True(t, answer.ToolResult.IsError)
}

func TestAsk_ProviderRejectsArguments(t *testing.T) {
	llm, invoker := newMocks(t)

	gomock.InOrder(
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolResponse(textstats.AnalyzeTextToolName, `{}`), nil),
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(textResponse("Please provide the text."), nil),
	)
	invoker.EXPECT().HasTool(textstats.AnalyzeTextToolName).Return(true)
	invoker.EXPECT().CallTool(gomock.Any(), gomock.Any()).
		Return(chatmodel.ToolResult{}, errors.Mark(errors.New("missing text"), chatmodel.ErrInvalidArguments))

	o, err := orchestrator.New(llm, invoker)
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), "Analyze")
	require.NoError(t, err)
	assert.Equal(t, "Please provide the text.", answer.Text)
	assert.Equal(t, "Error: missing text", answer.ToolResult.Content)
	assert.Equal(t, "call-1", answer.ToolResult.ToolCallID)
}

func TestAsk_TransportError(t *testing.T) {
	llm, invoker := newMocks(t)
	rec := &recorder{}

	llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(toolResponse(textstats.AnalyzeTextToolName, `{"text":"hi"}`), nil).Times(1)
	invoker.EXPECT().HasTool(textstats.AnalyzeTextToolName).Return(true)
	invoker.EXPECT().CallTool(gomock.Any(), gomock.Any()).
		Return(chatmodel.ToolResult{}, errors.Mark(errors.New("broken pipe"), chatmodel.ErrTransport))

	o, err := orchestrator.New(llm, invoker, orchestrator.WithCallback(rec))
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), "Analyze hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrTransport))
	assert.Equal(t, "query_error:Analyze hi", rec.events[len(rec.events)-1])
}

func TestAsk_ModelError(t *testing.T) {
	llm, invoker := newMocks(t)

	llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("503 service unavailable")).Times(1)

	o, err := orchestrator.New(llm, invoker)
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrModelAPI))
	assert.Equal(t, "model_api", chatmodel.Kind(err))
	assert.EqualError(t, err, "failed to generate content: 503 service unavailable")
}

func TestAsk_EmptyResponse(t *testing.T) {
	llm, invoker := newMocks(t)

	llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&llms.ContentResponse{}, nil).Times(1)

	o, err := orchestrator.New(llm, invoker)
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrModelAPI))
}

func TestAsk_NoFinalText(t *testing.T) {
	llm, invoker := newMocks(t)

	gomock.InOrder(
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolResponse(textstats.AnalyzeTextToolName, `{"text":"hi there"}`), nil),
		llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolResponse(textstats.CountSentencesToolName, `{"text":"hi there"}`), nil),
	)
	invoker.EXPECT().HasTool(textstats.AnalyzeTextToolName).Return(true)
	invoker.EXPECT().CallTool(gomock.Any(), gomock.Any()).
		Return(chatmodel.ToolResult{Name: textstats.AnalyzeTextToolName, Content: `{"word_count":2,"character_count":8}`}, nil).
		Times(1)

	o, err := orchestrator.New(llm, invoker)
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), "Analyze and count 'hi there'")
	require.NoError(t, err)
	assert.False(t, answer.HasText())
	assert.Empty(t, answer.Text)
}

func TestAsk_EmptyQuery(t *testing.T) {
	llm, invoker := newMocks(t)
	o, err := orchestrator.New(llm, invoker)
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), "  ")
	assert.EqualError(t, err, "query is empty")
}

func TestParseDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	catalog := mockorchestrator.NewMockToolInvoker(ctrl)
	catalog.EXPECT().HasTool(textstats.AnalyzeTextToolName).Return(true).AnyTimes()

	_, err := orchestrator.ParseDecision(nil, catalog)
	assert.True(t, errors.Is(err, chatmodel.ErrModelAPI))

	d, err := orchestrator.ParseDecision(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: " first "},
			{Content: ""},
			{Content: "second"},
		},
	}, catalog)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DirectAnswer{Text: "first\n\nsecond"}, d)

	resp := toolResponse(textstats.AnalyzeTextToolName, `{"text":"a b"}`)
	resp.Choices[0].ToolCalls = append(resp.Choices[0].ToolCalls, llms.ToolCall{
		ID:           "call-2",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "ignored", Arguments: "{}"},
	})
	d, err = orchestrator.ParseDecision(resp, catalog)
	require.NoError(t, err)
	tc, ok := d.(orchestrator.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call-1", tc.ID)
	assert.Equal(t, textstats.AnalyzeTextToolName, tc.Name)
	assert.Equal(t, map[string]any{"text": "a b"}, tc.Arguments)

	d, err = orchestrator.ParseDecision(toolResponse(textstats.AnalyzeTextToolName, ""), catalog)
	require.NoError(t, err)
	assert.Empty(t, d.(orchestrator.ToolCall).Arguments)

	d, err = orchestrator.ParseDecision(toolResponse("translate", "{}"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrUnknownTool))
	assert.Equal(t, "translate", d.(orchestrator.ToolCall).Name)
}

func TestConfig_GetCallOptions(t *testing.T) {
	cfg := orchestrator.NewConfig()
	assert.Empty(t, cfg.GetCallOptions())

	cfg = orchestrator.NewConfig(
		orchestrator.WithModel(""),
		orchestrator.WithMaxTokens(0),
		orchestrator.WithTemperature(0),
	)
	opts := callOptions(cfg.GetCallOptions(llms.WithTopK(3)))
	assert.Empty(t, opts.Model)
	assert.Equal(t, 0, opts.MaxTokens)
	assert.Equal(t, 3, opts.TopK)
	assert.Len(t, cfg.GetCallOptions(), 1, "temperature set explicitly")

	cfg = orchestrator.NewConfig(
		orchestrator.WithTopK(5),
		orchestrator.WithTopP(0.8),
		orchestrator.WithStopWords([]string{"END"}),
	)
	opts = callOptions(cfg.GetCallOptions())
	assert.Equal(t, 5, opts.TopK)
	assert.Equal(t, 0.8, opts.TopP)
	assert.Equal(t, []string{"END"}, opts.StopWords)
}

type fakeAsker struct {
	queries []string
}

func (f *fakeAsker) Ask(_ context.Context, query string) (*orchestrator.Answer, error) {
	f.queries = append(f.queries, query)
	switch query {
	case "fail":
		return nil, errors.Mark(errors.New("failed to generate content: timeout"), chatmodel.ErrModelAPI)
	case "notext":
		return &orchestrator.Answer{}, nil
	}
	return &orchestrator.Answer{Text: "answer to " + query}, nil
}

func TestConsole(t *testing.T) {
	asker := &fakeAsker{}
	var out strings.Builder
	c := &orchestrator.Console{
		In:    strings.NewReader("\n   \nhello\nfail\nnotext\nQuit\nnever\n"),
		Out:   &out,
		Asker: asker,
	}
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"hello", "fail", "notext"}, asker.queries)
	s := out.String()
	assert.True(t, strings.HasPrefix(s, "--- Text Analyzer Ready ---\n"))
	assert.Contains(t, s, "\nanswer to hello\n\n")
	assert.Contains(t, s, "Error: failed to generate content: timeout\n")
	assert.Contains(t, s, orchestrator.NoFinalTextMessage+"\n")
	assert.True(t, strings.HasSuffix(s, "Exiting.\n"))
	assert.NotContains(t, s, "never")
}

func TestConsole_EOF(t *testing.T) {
	asker := &fakeAsker{}
	var out strings.Builder
	c := &orchestrator.Console{
		In:    strings.NewReader("hello"),
		Out:   &out,
		Asker: asker,
	}
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"hello"}, asker.queries)
}

func TestConsole_LongLine(t *testing.T) {
	asker := &fakeAsker{}
	var out strings.Builder
	long := strings.Repeat("word ", 20000) + "end."
	c := &orchestrator.Console{
		In:    strings.NewReader("Count sentences in: " + long + "\nhello\nquit\n"),
		Out:   &out,
		Asker: asker,
	}
	require.NoError(t, c.Run(context.Background()))
	require.Len(t, asker.queries, 2)
	assert.Equal(t, "Count sentences in: "+long, asker.queries[0])
	assert.Equal(t, "hello", asker.queries[1])
	assert.Contains(t, out.String(), "\nanswer to hello\n\n")
}

func TestConsole_ReadError(t *testing.T) {
	asker := &fakeAsker{}
	var out strings.Builder
	c := &orchestrator.Console{
		In:    io.MultiReader(strings.NewReader("hello\n"), iotest.ErrReader(errors.New("broken pipe"))),
		Out:   &out,
		Asker: asker,
	}
	err := c.Run(context.Background())
	assert.EqualError(t, err, "failed to read query: broken pipe")
	assert.Equal(t, []string{"hello"}, asker.queries)
	assert.True(t, strings.HasSuffix(out.String(), "Exiting.\n"))
}

func TestConsole_PrintTools(t *testing.T) {
	var out strings.Builder
	c := &orchestrator.Console{Out: &out}

	c.PrintTools(nil)
	assert.Equal(t, "No tools discovered from the provider.\n", out.String())

	out.Reset()
	c.PrintTools([]tools.Descriptor{
		{Name: "analyze_text", Description: "Counts words."},
		{Name: "noop"},
	})
	assert.Equal(t, `--------------------
Available Tools from the provider:
  - Name: analyze_text
    Description: Counts words.
  - Name: noop
    Description: No description
--------------------
`, out.String())
}
