package mcp

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/pkg/schema"
	"github.com/effective-security/textanalyzer/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/textanalyzer", "mcp")

// ProviderName is the implementation name advertised by the provider
const ProviderName = "TextAnalyzer"

// Provider serves the tools of a Registry over MCP
type Provider struct {
	registry *tools.Registry
	server   *mcpsdk.Server
}

// NewProvider returns a Provider advertising every tool in the registry
func NewProvider(registry *tools.Registry, version string) (*Provider, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	p := &Provider{
		registry: registry,
		server: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    ProviderName,
			Version: version,
		}, nil),
	}

	for _, d := range registry.Descriptors() {
		inputSchema, err := schema.ToMap(d.InputSchema)
		if err != nil {
			return nil, errors.WithMessagef(err, "tool %q", d.Name)
		}
		// the schema keyword is not needed on the wire
		delete(inputSchema, "$schema")

		p.server.AddTool(&mcpsdk.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: inputSchema,
		}, p.handler(d.Name))

		logger.KV(xlog.DEBUG, "status", "registered", "tool", d.Name)
	}
	return p, nil
}

// Server returns the underlying MCP server
func (p *Provider) Server() *mcpsdk.Server {
	return p.server
}

// Run serves the transport until the client disconnects or ctx is done
func (p *Provider) Run(ctx context.Context, transport mcpsdk.Transport) error {
	logger.KV(xlog.INFO, "status", "serving", "tools", len(p.registry.Descriptors()))
	if err := p.server.Run(ctx, transport); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return errors.Wrap(err, "provider stopped")
	}
	return nil
}

// handler runs the named tool. Failures are returned as an error-bearing
// result so the calling model can phrase them.
func (p *Provider) handler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := map[string]any{}
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				err = errors.Mark(errors.Wrapf(err, "invalid arguments for tool %q", name), chatmodel.ErrInvalidArguments)
				return errorResult(ctx, name, err), nil
			}
			if args == nil {
				args = map[string]any{}
			}
		}

		out, err := p.registry.Call(ctx, name, args)
		if err != nil {
			return errorResult(ctx, name, err), nil
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "called",
			"tool", name,
			"output", slices.StringUpto(out, 64),
		)
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}

func errorResult(ctx context.Context, name string, err error) *mcpsdk.CallToolResult {
	logger.ContextKV(ctx, xlog.WARNING,
		"status", "tool_error",
		"tool", name,
		"kind", chatmodel.Kind(err),
		"err", err.Error(),
	)
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "Error: " + err.Error()}},
	}
}
