package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// QueryContext carries the identity of a single user query
type QueryContext interface {
	GetQueryID() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type queryContext struct {
	queryID  string
	metadata sync.Map
}

func (c *queryContext) GetQueryID() string {
	return c.queryID
}

func (c *queryContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *queryContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewQueryContext returns QueryContext,
// a new ID is generated if queryID is empty
func NewQueryContext(queryID string) QueryContext {
	return &queryContext{
		queryID: values.StringsCoalesce(queryID, NewQueryID()),
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithQueryContext returns a new context with QueryContext value
func WithQueryContext(ctx context.Context, qctx QueryContext) context.Context {
	return context.WithValue(ctx, keyContext, qctx)
}

// GetQueryContext retrieves the QueryContext from the context
func GetQueryContext(ctx context.Context) QueryContext {
	if v, ok := ctx.Value(keyContext).(QueryContext); ok {
		return v
	}
	return nil
}

// GetQueryID retrieves the query ID from the provided context.
// If the context does not contain a QueryContext, it returns an empty string.
func GetQueryID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(QueryContext); ok {
		return v.GetQueryID()
	}
	return ""
}

// NewQueryID generates a new ID using the flake ID generator.
func NewQueryID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
