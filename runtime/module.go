package runtime

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/task"
)

// EnvironmentSource supplies the environment variables of a task.
type EnvironmentSource interface {
	GetEnvironmentVariables(ctx context.Context, id task.Identifier) ([]task.EnvironmentVariable, error)
}

// ModuleOptions configures how a module is wired to its caller.
type ModuleOptions struct {
	// Stdin, Stdout and Stderr are the guest standard streams. Nil
	// streams read EOF and discard writes.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Environment is queried once for Task's variables. Nil means an
	// empty environment.
	Environment EnvironmentSource

	Name string
	Task task.Identifier
}

// Module is a compiled guest binary bound to a Runtime together with its
// process-system-interface configuration. It must not outlive the Runtime.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	config   wazero.ModuleConfig
	name     string
	env      []string
}

// NewModule compiles buffer and snapshots the environment of opts.Task.
// Malformed bytecode is a CompilationError; a failing environment query is
// FailedToGetTaskInformations. Nothing is left allocated on failure.
func NewModule(ctx context.Context, rt *Runtime, buffer []byte, opts ModuleOptions) (*Module, error) {
	compiled, err := rt.runtime.CompileModule(ctx, buffer)
	if err != nil {
		return nil, errors.CompilationError(err)
	}

	var vars []task.EnvironmentVariable
	if opts.Environment != nil {
		vars, err = opts.Environment.GetEnvironmentVariables(ctx, opts.Task)
		if err != nil {
			_ = compiled.Close(ctx)
			return nil, errors.FailedToGetTaskInformations(err)
		}
	}

	m := &Module{
		runtime:  rt,
		compiled: compiled,
		name:     opts.Name,
		env:      make([]string, 0, len(vars)),
	}

	// Anonymous instances so the same module can run several times
	// concurrently. No arguments are passed.
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)
	if opts.Stdin != nil {
		cfg = cfg.WithStdin(opts.Stdin)
	}
	if opts.Stdout != nil {
		cfg = cfg.WithStdout(opts.Stdout)
	}
	if opts.Stderr != nil {
		cfg = cfg.WithStderr(opts.Stderr)
	}
	for _, v := range vars {
		cfg = cfg.WithEnv(v.Name, v.Value)
		m.env = append(m.env, v.String())
	}
	if rt.rootFS != nil {
		cfg = cfg.WithFSConfig(wazero.NewFSConfig().WithFSMount(rt.rootFS, "/"))
	}
	m.config = cfg

	Logger().Debug("module compiled",
		zap.String("name", opts.Name),
		zap.Uint32("task", uint32(opts.Task)),
		zap.Int("env", len(m.env)))
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Environment returns the NAME=value entries the guest sees.
func (m *Module) Environment() []string {
	return append([]string(nil), m.env...)
}

// Exports lists the exported function names.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// Close releases the compiled module. Instances must be closed first.
func (m *Module) Close(ctx context.Context) error {
	if m.compiled == nil {
		return nil
	}
	err := m.compiled.Close(ctx)
	m.compiled = nil
	m.env = nil
	return err
}
