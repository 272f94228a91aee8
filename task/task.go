package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound            = errors.New("task not found")
	ErrNoCurrentTask       = errors.New("no task attached to context")
	ErrInvalidVariableName = errors.New("invalid environment variable name")
	ErrVariableNotFound    = errors.New("environment variable not found")
)

// Identifier identifies a task. Zero is never assigned.
type Identifier uint32

// EnvironmentVariable is one NAME=value entry of a task environment.
type EnvironmentVariable struct {
	Name  string
	Value string
}

// String renders the variable in process environment form.
func (v EnvironmentVariable) String() string {
	return v.Name + "=" + v.Value
}

type contextKey struct{}

// WithIdentifier attaches a task identifier to ctx.
func WithIdentifier(ctx context.Context, id Identifier) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentifierFrom returns the task identifier attached to ctx.
func IdentifierFrom(ctx context.Context) (Identifier, bool) {
	id, ok := ctx.Value(contextKey{}).(Identifier)
	return id, ok
}

type entry struct {
	environment map[string]string
	name        string
	parent      Identifier
}

// Manager tracks tasks, their environments and spawned host work.
type Manager struct {
	tasks map[Identifier]*entry
	group errgroup.Group
	next  Identifier
	mu    sync.RWMutex
}

// NewManager creates an empty task manager.
func NewManager() *Manager {
	return &Manager{
		tasks: make(map[Identifier]*entry),
		next:  1,
	}
}

// NewTask registers a task. A non-zero parent must exist; the child starts
// with a copy of the parent's environment.
func (m *Manager) NewTask(name string, parent Identifier) (Identifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	env := make(map[string]string)
	if parent != 0 {
		p, ok := m.tasks[parent]
		if !ok {
			return 0, fmt.Errorf("parent %d: %w", parent, ErrNotFound)
		}
		for k, v := range p.environment {
			env[k] = v
		}
	}

	id := m.next
	m.next++
	m.tasks[id] = &entry{
		name:        name,
		parent:      parent,
		environment: env,
	}
	return id, nil
}

// Remove forgets a task.
func (m *Manager) Remove(id Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	delete(m.tasks, id)
	return nil
}

// Name returns the name a task was registered with.
func (m *Manager) Name(id Identifier) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return "", fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return e.name, nil
}

// Parent returns the parent of a task, zero for root tasks.
func (m *Manager) Parent(id Identifier) (Identifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return 0, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return e.parent, nil
}

// GetCurrentTaskIdentifier returns the registered task attached to ctx.
func (m *Manager) GetCurrentTaskIdentifier(ctx context.Context) (Identifier, error) {
	id, ok := IdentifierFrom(ctx)
	if !ok {
		return 0, ErrNoCurrentTask
	}

	m.mu.RLock()
	_, exists := m.tasks[id]
	m.mu.RUnlock()
	if !exists {
		return 0, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return id, nil
}

// GetEnvironmentVariables returns a snapshot of the task environment
// sorted by name.
func (m *Manager) GetEnvironmentVariables(ctx context.Context, id Identifier) ([]EnvironmentVariable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}

	vars := make([]EnvironmentVariable, 0, len(e.environment))
	for k, v := range e.environment {
		vars = append(vars, EnvironmentVariable{Name: k, Value: v})
	}
	sort.Slice(vars, func(i, j int) bool {
		return vars[i].Name < vars[j].Name
	})
	return vars, nil
}

// GetEnvironmentVariable returns a single variable of the task environment.
func (m *Manager) GetEnvironmentVariable(id Identifier, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return "", fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	v, ok := e.environment[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrVariableNotFound)
	}
	return v, nil
}

// SetEnvironmentVariable sets or replaces a variable of the task environment.
func (m *Manager) SetEnvironmentVariable(id Identifier, name, value string) error {
	if name == "" || strings.ContainsAny(name, "=\x00") || strings.ContainsRune(value, 0) {
		return fmt.Errorf("%q: %w", name, ErrInvalidVariableName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	e.environment[name] = value
	return nil
}

// RemoveEnvironmentVariable deletes a variable from the task environment.
func (m *Manager) RemoveEnvironmentVariable(id Identifier, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if _, ok := e.environment[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrVariableNotFound)
	}
	delete(e.environment, name)
	return nil
}

// Spawn registers a child of parent and runs fn for it on its own
// goroutine. The child is removed once fn returns. Use Wait to collect
// the first error of all spawned work.
func (m *Manager) Spawn(ctx context.Context, parent Identifier, name string, fn func(ctx context.Context) error) (Identifier, error) {
	id, err := m.NewTask(name, parent)
	if err != nil {
		return 0, err
	}

	childCtx := WithIdentifier(ctx, id)
	m.group.Go(func() error {
		defer m.Remove(id)
		if err := fn(childCtx); err != nil {
			return fmt.Errorf("task %d (%s): %w", id, name, err)
		}
		return nil
	})
	return id, nil
}

// Wait blocks until all spawned tasks have returned.
func (m *Manager) Wait() error {
	return m.group.Wait()
}

// Sleep suspends the calling task for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
