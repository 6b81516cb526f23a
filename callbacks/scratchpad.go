package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/orchestrator"
	"github.com/effective-security/textanalyzer/pkg/llms"
	"github.com/effective-security/textanalyzer/pkg/llmutils"
)

// ensure Scratchpad implements orchestrator.Callback
var _ orchestrator.Callback = (*Scratchpad)(nil)

var TimeNowFn = time.Now

type RunStats struct {
	QueryID string
	Route   string

	Duration            time.Duration
	TotalMessages       uint32
	LLMBytesOut         uint64
	LLMBytesIn          uint64
	LLMInputTokens      uint64
	LLMOutputTokens     uint64
	LLMTotalTokens      uint64
	LLMCalls            uint32
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
	Failed              bool
}

// Scratchpad collects a trace and stats for each query.
// The run starts on OnQueryStart and ends on OnQueryEnd or OnQueryError,
// when the trace is written to Out, if set.
type Scratchpad struct {
	Out io.Writer

	runs map[string]*run
	last *RunStats
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode, out io.Writer) *Scratchpad {
	return &Scratchpad{
		Out:  out,
		runs: make(map[string]*run),
		mode: mode,
	}
}

func (l *Scratchpad) StartRun(ctx context.Context) {
	queryID := chatmodel.GetQueryID(ctx)
	if queryID == "" {
		return
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	r := &run{
		stats: RunStats{
			QueryID: queryID,
		},
		started: time.Now(),
	}
	l.runs[queryID] = r
	r.print("*** Run Started ***")
}

func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
	))
	run.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Bytes Total: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.LLMCalls,
		stats.TotalMessages,
		stats.LLMBytesOut,
		stats.LLMBytesIn,
		stats.LLMBytesOut+stats.LLMBytesIn,
		stats.LLMInputTokens,
		stats.LLMOutputTokens,
		stats.LLMTotalTokens,
	))

	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, stats.QueryID)
	l.last = &stats
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

// LastStats returns the stats of the last ended run
func (l *Scratchpad) LastStats() *RunStats {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.last
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	l.lock.Lock()
	defer l.lock.Unlock()

	queryID := chatmodel.GetQueryID(ctx)
	if queryID == "" {
		return nil
	}
	return l.runs[queryID]
}

func (l *Scratchpad) flush(ctx context.Context) {
	_, trace := l.EndRun(ctx)
	if l.Out != nil && len(trace) > 0 {
		_, _ = l.Out.Write(trace)
	}
}

func (l *Scratchpad) OnQueryStart(ctx context.Context, query string) {
	l.StartRun(ctx)
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	run.print("Input:", query)
}

func (l *Scratchpad) OnQueryEnd(ctx context.Context, query string, answer *orchestrator.Answer) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	run.lock.Lock()
	run.stats.Route = answer.Route
	run.lock.Unlock()
	if l.mode == ModeVerbose {
		run.print("Output:", answer.Text)
		run.print(l.printMessages(answer.Messages))
	}
	l.flush(ctx)
}

func (l *Scratchpad) OnQueryError(ctx context.Context, query string, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	run.lock.Lock()
	run.stats.Failed = true
	run.lock.Unlock()
	run.print("*** Error ***", err.Error())
	l.flush(ctx)
}

func (l *Scratchpad) printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		textParts := 0
		toolParts := 0
		toolResponseParts := 0
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				textParts++
			case llms.ToolCall:
				toolParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			case llms.ToolCallResponse:
				toolResponseParts++
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			}
		}

		fmt.Fprintf(&buf, "  - %d texts, %d tool calls, %d tool responses\n", textParts, toolParts, toolResponseParts)
	}
	return buf.String()
}

func (l *Scratchpad) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	atomic.AddUint64(&run.stats.LLMBytesOut, llmutils.CountMessagesContentSize(payload))
	atomic.AddUint32(&run.stats.LLMCalls, 1)
	count := uint32(len(payload))
	atomic.AddUint32(&run.stats.TotalMessages, count)

	run.print("*** LLM Call ***", fmt.Sprintf("%s model, %d messages", llm.GetName(), count))
}

func (l *Scratchpad) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	atomic.AddUint64(&run.stats.LLMBytesIn, llmutils.CountResponseContentSize(resp))
	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	atomic.AddUint64(&run.stats.LLMInputTokens, uint64(tokensIn))
	atomic.AddUint64(&run.stats.LLMOutputTokens, uint64(tokensOut))
	atomic.AddUint64(&run.stats.LLMTotalTokens, uint64(tokensTotal))

	run.print("*** LLM Call End ***", fmt.Sprintf("%s model, %d input tokens, %d output tokens, %d total tokens", llm.GetName(), tokensIn, tokensOut, tokensTotal))
}

func (l *Scratchpad) OnToolCall(ctx context.Context, call chatmodel.ToolCall) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCalls, 1)
	run.print(call.Name, "*** Tool Start ***")
	run.print(call.Name, "Input:", call.ArgumentsJSON())
}

func (l *Scratchpad) OnToolResult(ctx context.Context, result chatmodel.ToolResult) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	if result.IsError {
		atomic.AddUint32(&run.stats.ToolsCallsFailed, 1)
		run.print(result.Name, "*** Tool Error ***", result.Content)
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print(result.Name, "Output:", result.Content)
	}
	run.print(result.Name, "*** Tool End ***")
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, tool string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print("*** Tool Not Found ***", tool)
}

type run struct {
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp queryID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.stats.QueryID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
