package tools

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/textanalyzer/chatmodel"
	"github.com/effective-security/textanalyzer/pkg/llmutils"
	"github.com/effective-security/textanalyzer/pkg/metricskey"
	"github.com/effective-security/textanalyzer/pkg/schema"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/textanalyzer", "tools")

// Registry is a set of tools addressed by exact name.
// Tools are registered at startup, the set is not modified while serving.
type Registry struct {
	lock       sync.RWMutex
	tools      map[string]ITool
	validators map[string]*schema.Validator
	callback   Callback
}

// NewRegistry returns a Registry with the tools
func NewRegistry(list ...ITool) (*Registry, error) {
	r := &Registry{
		tools:      make(map[string]ITool, len(list)),
		validators: make(map[string]*schema.Validator, len(list)),
	}
	for _, t := range list {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// WithCallback sets the tool execution callback
func (r *Registry) WithCallback(cb Callback) *Registry {
	r.callback = cb
	return r
}

// Register adds a tool; the name must be unique
// and the input schema must be resolvable.
func (r *Registry) Register(t ITool) error {
	name := t.Name()
	if name == "" {
		return errors.New("tool name is required")
	}
	v, err := schema.NewValidator(t.Parameters())
	if err != nil {
		return errors.WithMessagef(err, "tool %q", name)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.tools[name]; ok {
		return errors.Newf("tool %q is already registered", name)
	}
	r.tools[name] = t
	r.validators[name] = v
	return nil
}

// Get returns the tool by name
func (r *Registry) Get(name string) (ITool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Descriptors returns the catalog sorted by name
func (r *Registry) Descriptors() []Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, Describe(t))
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Call validates the arguments against the tool schema and runs the tool.
// An unregistered name fails with ErrUnknownTool,
// arguments not matching the schema fail with ErrInvalidArguments.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	r.lock.RLock()
	tool, ok := r.tools[name]
	validator := r.validators[name]
	r.lock.RUnlock()
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_not_found",
			"tool", name,
		)
		return "", errors.Mark(errors.Newf("unknown tool %q", name), chatmodel.ErrUnknownTool)
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, name)

	if args == nil {
		args = map[string]any{}
	}
	input := llmutils.ToJSON(args)

	if err := validator.Validate(args); err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		err = errors.Mark(errors.Wrapf(err, "invalid arguments for tool %q", name), chatmodel.ErrInvalidArguments)
		if r.callback != nil {
			r.callback.OnToolError(ctx, tool, input, err)
		}
		return "", err
	}

	if r.callback != nil {
		r.callback.OnToolStart(ctx, tool, input)
	}

	output, err := tool.Call(ctx, input)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "tool_failed",
			"tool", name,
			"input", slices.StringUpto(input, 64),
			"err", err.Error(),
		)
		if r.callback != nil {
			r.callback.OnToolError(ctx, tool, input, err)
		}
		return "", err
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	if r.callback != nil {
		r.callback.OnToolEnd(ctx, tool, input, output)
	}
	return output, nil
}
