package mcp

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/pkg/llmutils"
	"github.com/effective-security/textanalyzer/pkg/metricskey"
	"github.com/effective-security/textanalyzer/pkg/schema"
	"github.com/effective-security/textanalyzer/tools"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// NoContentMessage is returned as the tool result when the provider
	// responded without any text content.
	NoContentMessage = "Error: Tool executed but no parsable content returned."
	// FailedMessage is returned as the tool result when the provider
	// reported a failure without any text content.
	FailedMessage = "Tool execution failed on server."
)

// ClientName is the implementation name advertised by the client
const ClientName = "textanalyzer-client"

// Client is a session with a tool provider.
// The tool catalog is fetched once on connect and does not change.
type Client struct {
	session *mcpsdk.ClientSession
	catalog []tools.Descriptor
	byName  map[string]tools.Descriptor
}

// CommandTransport returns the stdio transport that launches the provider
// from a command line split on whitespace.
func CommandTransport(ctx context.Context, commandLine string) (mcpsdk.Transport, error) {
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return nil, errors.Mark(errors.New("provider command is empty"), chatmodel.ErrStartup)
	}
	// #nosec G204 -- the command line is provided by the operator
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

// Launch starts the provider process and connects to it.
// Any failure is marked with ErrStartup.
func Launch(ctx context.Context, commandLine, version string) (*Client, error) {
	transport, err := CommandTransport(ctx, commandLine)
	if err != nil {
		return nil, err
	}
	c, err := Connect(ctx, transport, version)
	if err != nil {
		return nil, errors.Mark(errors.WithMessagef(err, "unable to launch %q", commandLine), chatmodel.ErrStartup)
	}
	return c, nil
}

// Connect initializes the session over the transport and discovers the tools
func Connect(ctx context.Context, transport mcpsdk.Transport, version string) (*Client, error) {
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: ClientName, Version: version}, nil)
	session, err := impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to initialize session"), chatmodel.ErrStartup)
	}

	c := &Client{
		session: session,
		byName:  map[string]tools.Descriptor{},
	}
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, errors.Mark(errors.Wrap(err, "failed to list tools"), chatmodel.ErrStartup)
		}
		d := tools.Descriptor{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if tool.InputSchema != nil {
			d.InputSchema, err = schema.FromAny(tool.InputSchema)
			if err != nil {
				_ = session.Close()
				return nil, errors.Mark(errors.WithMessagef(err, "tool %q", tool.Name), chatmodel.ErrStartup)
			}
		}
		c.catalog = append(c.catalog, d)
		c.byName[d.Name] = d
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"tools", len(c.catalog),
	)
	return c, nil
}

// Tools returns the discovered tool catalog
func (c *Client) Tools() []tools.Descriptor {
	return append([]tools.Descriptor(nil), c.catalog...)
}

// HasTool returns true if the provider advertised the tool
func (c *Client) HasTool(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// CallTool invokes the tool on the provider.
// A tool that reports a failure is returned as an error-bearing result,
// session failures are returned as ErrTransport.
func (c *Client) CallTool(ctx context.Context, call chatmodel.ToolCall) (chatmodel.ToolResult, error) {
	if !c.HasTool(call.Name) {
		return chatmodel.ToolResult{}, errors.Mark(errors.Newf("unknown tool %q", call.Name), chatmodel.ErrUnknownTool)
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, call.Name)

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name)
		return chatmodel.ToolResult{}, errors.Mark(errors.Wrapf(err, "failed to call tool %q", call.Name), chatmodel.ErrTransport)
	}

	result := chatmodel.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		IsError:    res.IsError,
	}
	text, ok := firstText(res)
	switch {
	case ok:
		result.Content, _ = llmutils.PrettyJSON(text)
	case res.IsError:
		result.Content = FailedMessage
	default:
		result.Content = NoContentMessage
	}

	if result.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name)
	} else {
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, call.Name)
	}
	return result, nil
}

// Close ends the session and stops the provider process
func (c *Client) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func firstText(res *mcpsdk.CallToolResult) (string, bool) {
	if res == nil {
		return "", false
	}
	for _, content := range res.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			return tc.Text, true
		}
	}
	return "", false
}
