package abicontext

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/task"
)

// TaskResolver resolves the task on whose behalf a call runs.
type TaskResolver interface {
	GetCurrentTaskIdentifier(ctx context.Context) (task.Identifier, error)
}

// TaskResolverFunc adapts a function to TaskResolver.
type TaskResolverFunc func(ctx context.Context) (task.Identifier, error)

// GetCurrentTaskIdentifier implements TaskResolver.
func (f TaskResolverFunc) GetCurrentTaskIdentifier(ctx context.Context) (task.Identifier, error) {
	return f(ctx)
}

// Context is a single-cell gate recording which task is currently
// executing a host call. At most one task is in context at a time; other
// callers queue in arrival order until the cell is cleared.
type Context struct {
	gate    *semaphore.Weighted
	current task.Identifier
	mu      sync.RWMutex
	set     bool
}

var (
	global     *Context
	globalOnce sync.Once
)

// Instance returns the process-wide context.
func Instance() *Context {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// New creates an independent context. Host code shares Instance; New
// exists for isolated tests.
func New() *Context {
	return &Context{gate: semaphore.NewWeighted(1)}
}

// SetTask waits until the cell is empty and stores t. It fails only when
// ctx is done before the cell frees up.
func (c *Context) SetTask(ctx context.Context, t task.Identifier) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = t
	c.set = true
	c.mu.Unlock()

	Logger().Debug("task entered context", taskField(t))
	return nil
}

// ClearTask empties the cell and admits the next waiter. Clearing an
// empty cell does nothing.
func (c *Context) ClearTask() {
	c.mu.Lock()
	if !c.set {
		c.mu.Unlock()
		return
	}
	t := c.current
	c.current = 0
	c.set = false
	c.mu.Unlock()

	c.gate.Release(1)
	Logger().Debug("task left context", taskField(t))
}

// GetCurrentTaskIdentifier returns the task in context. Calling it outside
// CallWithTaskContext is a programming error and panics.
func (c *Context) GetCurrentTaskIdentifier() task.Identifier {
	t, ok := c.TryGetCurrentTaskIdentifier()
	if !ok {
		panic("abicontext: no current task set")
	}
	return t
}

// TryGetCurrentTaskIdentifier returns the task in context, if any.
func (c *Context) TryGetCurrentTaskIdentifier() (task.Identifier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.set
}

// CallWithTaskContext resolves the calling task, enters context with it,
// runs fn and leaves context on every return path.
func (c *Context) CallWithTaskContext(ctx context.Context, resolver TaskResolver, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, c, resolver, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is CallWithTaskContext for functions producing a value.
func Call[R any](ctx context.Context, c *Context, resolver TaskResolver, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R

	t, err := resolver.GetCurrentTaskIdentifier(ctx)
	if err != nil {
		return zero, errors.FailedToGetTaskInformations(err)
	}

	if err := c.SetTask(ctx, t); err != nil {
		return zero, errors.New(errors.PhaseContext, errors.KindExecutionError).
			Detail("wait to enter context for task %d", t).
			Cause(err).
			Build()
	}
	defer c.ClearTask()

	return fn(ctx)
}
