package orchestrator

import (
	"context"

	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/pkg/llms"
)

// Callback receives the events of a query
type Callback interface {
	OnQueryStart(ctx context.Context, query string)
	OnQueryEnd(ctx context.Context, query string, answer *Answer)
	OnQueryError(ctx context.Context, query string, err error)

	OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message)
	OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse)

	OnToolCall(ctx context.Context, call chatmodel.ToolCall)
	OnToolResult(ctx context.Context, result chatmodel.ToolResult)
	OnToolNotFound(ctx context.Context, tool string)
}
