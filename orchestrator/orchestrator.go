package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/pkg/llms"
	"github.com/effective-security/textanalyzer/pkg/llmutils"
	"github.com/effective-security/textanalyzer/pkg/metricskey"
	"github.com/effective-security/textanalyzer/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/textanalyzer", "orchestrator")

// State of a query
type State string

// Query states, in the order they are visited
const (
	StateAwaitingQuery   State = "AWAITING_QUERY"
	StateModelDeciding   State = "MODEL_DECIDING"
	StateDirectAnswer    State = "DIRECT_ANSWER"
	StateToolCall        State = "TOOL_CALL"
	StateToolExecuting   State = "TOOL_EXECUTING"
	StateModelFinalizing State = "MODEL_FINALIZING"
	StateDone            State = "DONE"
)

// Routes a query can take, used as metric tag
const (
	RouteDirect = "direct"
	RouteTool   = "tool"
)

//go:generate mockgen -destination=../mocks/mockorchestrator/orchestrator_mock.gen.go -package mockorchestrator github.com/effective-security/textanalyzer/orchestrator ToolInvoker

// ToolInvoker discovers and calls tools of a provider
type ToolInvoker interface {
	Catalog
	Tools() []tools.Descriptor
	CallTool(ctx context.Context, call chatmodel.ToolCall) (chatmodel.ToolResult, error)
}

// Answer is the outcome of a query
type Answer struct {
	QueryID string
	// Text is the final answer, empty if the model did not produce text
	Text string
	// Route is RouteDirect or RouteTool
	Route string
	// ToolCall is set when the model asked for a tool
	ToolCall *chatmodel.ToolCall
	// ToolResult is set when the model asked for a tool
	ToolResult *chatmodel.ToolResult
	// States visited by the query
	States []State
	// Messages exchanged with the model
	Messages []llms.Message
}

// HasText returns true if the model produced a final text answer
func (a *Answer) HasText() bool {
	return a != nil && strings.TrimSpace(a.Text) != ""
}

// Orchestrator answers user queries with a language model,
// calling at most one provider tool per query.
type Orchestrator struct {
	llm      llms.Model
	invoker  ToolInvoker
	cfg      *Config
	llmTools []llms.Tool
	callOpts []llms.CallOption
}

// New returns an Orchestrator using the tools discovered by the invoker
func New(llm llms.Model, invoker ToolInvoker, opts ...Option) (*Orchestrator, error) {
	if llm == nil {
		return nil, errors.New("model is required")
	}
	if invoker == nil {
		return nil, errors.New("tool invoker is required")
	}

	o := &Orchestrator{
		llm:     llm,
		invoker: invoker,
		cfg:     NewConfig(opts...),
	}

	for _, d := range invoker.Tools() {
		o.llmTools = append(o.llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}

	// only the first choice is used
	extra := []llms.CallOption{llms.WithCandidateCount(1)}
	if len(o.llmTools) > 0 {
		prov := llm.GetProviderType()
		if !prov.Supports(llms.CapabilityFunctionCalling) {
			return nil, errors.Newf("the %s model does not support function calling", llm.GetName())
		}
		extra = append(extra,
			llms.WithTools(o.llmTools),
			llms.WithToolChoice(llms.FunctionCallBehaviorAuto),
		)
	}
	o.callOpts = o.cfg.GetCallOptions(extra...)
	return o, nil
}

// Tools returns the tools offered to the model
func (o *Orchestrator) Tools() []tools.Descriptor {
	return o.invoker.Tools()
}

// ModelName returns the name of the model used for queries
func (o *Orchestrator) ModelName() string {
	return values.StringsCoalesce(o.cfg.Model, o.llm.GetName())
}

// Ask answers the query. Model and transport failures are returned,
// tool failures are reported to the model and phrased in the answer.
func (o *Orchestrator) Ask(ctx context.Context, query string) (*Answer, error) {
	qctx := chatmodel.GetQueryContext(ctx)
	if qctx == nil {
		qctx = chatmodel.NewQueryContext("")
		ctx = chatmodel.WithQueryContext(ctx, qctx)
	}

	answer := &Answer{
		QueryID: qctx.GetQueryID(),
		Route:   RouteDirect,
	}
	answer.transition(ctx, StateAwaitingQuery)

	started := time.Now()
	cb := o.cfg.CallbackHandler
	if cb != nil {
		cb.OnQueryStart(ctx, query)
	}

	err := o.run(ctx, query, answer)
	defer metricskey.PerfQuery.MeasureSince(started, answer.Route)

	if err != nil {
		metricskey.StatsQueriesFailed.IncrCounter(1, answer.Route)
		logger.ContextKV(ctx, xlog.ERROR,
			"query_id", answer.QueryID,
			"status", "query_failed",
			"kind", chatmodel.Kind(err),
			"err", err.Error(),
		)
		answer.transition(ctx, StateAwaitingQuery)
		if cb != nil {
			cb.OnQueryError(ctx, query, err)
		}
		return nil, err
	}

	metricskey.StatsQueriesSucceeded.IncrCounter(1, answer.Route)
	answer.transition(ctx, StateDone)
	if cb != nil {
		cb.OnQueryEnd(ctx, query, answer)
	}
	answer.transition(ctx, StateAwaitingQuery)
	return answer, nil
}

func (o *Orchestrator) run(ctx context.Context, query string, answer *Answer) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("query is empty")
	}

	cb := o.cfg.CallbackHandler
	turn := chatmodel.NewTurn(o.cfg.SystemPrompt, query)
	defer func() {
		answer.Messages = turn.Messages()
	}()

	answer.transition(ctx, StateModelDeciding)
	resp, err := o.generate(ctx, turn.Messages())
	if err != nil {
		return err
	}

	decision, err := ParseDecision(resp, o.invoker)
	if decision == nil {
		return err
	}

	switch d := decision.(type) {
	case DirectAnswer:
		answer.transition(ctx, StateDirectAnswer)
		answer.Text = d.Text
		if d.Text != "" {
			turn.AddAnswer(d.Text)
		}
		return nil

	case ToolCall:
		answer.Route = RouteTool
		answer.transition(ctx, StateToolCall)

		call := d.ToolCall
		if call.ID == "" {
			call.ID = fmt.Sprintf("%s_%d", call.Name, 0)
		}
		answer.ToolCall = &call
		turn.AddToolCall(call)

		logger.ContextKV(ctx, xlog.DEBUG,
			"query_id", answer.QueryID,
			"status", "tool_call_found",
			"tool_call_id", call.ID,
			"tool_call_name", call.Name,
		)

		var result chatmodel.ToolResult
		if err != nil {
			if errors.Is(err, chatmodel.ErrUnknownTool) {
				metricskey.StatsToolCallsNotFound.IncrCounter(1, call.Name)
				if cb != nil {
					cb.OnToolNotFound(ctx, call.Name)
				}
			}
			result = chatmodel.NewToolError(call, err)
		} else {
			answer.transition(ctx, StateToolExecuting)
			if cb != nil {
				cb.OnToolCall(ctx, call)
			}
			result, err = o.invoker.CallTool(ctx, call)
			if err != nil {
				if !errors.Is(err, chatmodel.ErrUnknownTool) && !errors.Is(err, chatmodel.ErrInvalidArguments) {
					return err
				}
				result = chatmodel.NewToolError(call, err)
			}
		}

		if cb != nil {
			cb.OnToolResult(ctx, result)
		}
		answer.ToolResult = &result
		turn.AddToolResult(result)

		answer.transition(ctx, StateModelFinalizing)
		resp, err = o.generate(ctx, turn.Messages())
		if err != nil {
			return err
		}

		answer.Text = responseText(resp)
		if answer.Text != "" {
			turn.AddAnswer(answer.Text)
		} else {
			logger.ContextKV(ctx, xlog.WARNING,
				"query_id", answer.QueryID,
				"status", "no_final_text",
				"tool_call_name", call.Name,
			)
		}
		return nil

	default:
		return errors.Newf("unexpected decision %T", decision)
	}
}

// generate calls the model with the tools attached
func (o *Orchestrator) generate(ctx context.Context, messages []llms.Message) (*llms.ContentResponse, error) {
	modelName := o.ModelName()
	cb := o.cfg.CallbackHandler
	if cb != nil {
		cb.OnLLMCallStart(ctx, o.llm, messages)
	}

	bytesSent := llmutils.CountMessagesContentSize(messages)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), modelName)

	started := time.Now()
	resp, err := o.llm.GenerateContent(ctx, messages, o.callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, modelName)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, modelName)
		return nil, errors.Mark(errors.WithMessage(err, "failed to generate content"), chatmodel.ErrModelAPI)
	}
	if resp == nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, modelName)
		return nil, errors.Mark(errors.New("model returned no response"), chatmodel.ErrModelAPI)
	}

	if cb != nil {
		cb.OnLLMCallEnd(ctx, o.llm, resp)
	}

	metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), modelName)
	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), modelName)

	logger.ContextKV(ctx, xlog.DEBUG,
		"query_id", chatmodel.GetQueryID(ctx),
		"status", "model_response",
		"model", modelName,
		"choices", len(resp.Choices),
		"text", slices.StringUpto(responseText(resp), 64),
	)
	return resp, nil
}

func (a *Answer) transition(ctx context.Context, s State) {
	a.States = append(a.States, s)
	logger.ContextKV(ctx, xlog.DEBUG,
		"query_id", a.QueryID,
		"state", string(s),
	)
}
