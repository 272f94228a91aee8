// Package manager drives complete guest runs: it owns the Runtime with the
// registered native symbols and turns a bytecode buffer plus a task into an
// exit status.
package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/abicontext"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/task"
	"github.com/wippyai/wasm-bridge/vfs"
)

// EntryPoint is the export every guest program runs from.
const EntryPoint = "_start"

// DefaultPreflightCacheSize is the number of inspected binaries kept.
const DefaultPreflightCacheSize = 64

// Options configures a Manager.
type Options struct {
	// Tasks supplies task identity and environments. Required.
	Tasks *task.Manager

	// Files holds the standard streams of every task. Required.
	Files *vfs.VirtualFileSystem

	// Runtime is passed to the runtime builder. When Metrics is set and
	// no observer is configured, Metrics observes host calls.
	Runtime runtime.Config

	// Metrics records executions. Optional.
	Metrics *metrics.Collectors

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// PreflightCacheSize defaults to DefaultPreflightCacheSize.
	PreflightCacheSize int
}

// Manager executes guest programs on a shared Runtime.
type Manager struct {
	runtime   *runtime.Runtime
	tasks     *task.Manager
	files     *vfs.VirtualFileSystem
	metrics   *metrics.Collectors
	logger    *zap.Logger
	preflight *lru.Cache[uint64, *runtime.Summary]
}

var (
	current  atomic.Pointer[Manager]
	initOnce sync.Once
	initErr  error
)

// Initialize builds the process-wide manager on first call. Later calls
// ignore their arguments and return the existing manager, or the error
// the first call failed with.
func Initialize(ctx context.Context, opts Options, registrables ...runtime.Registrable) (*Manager, error) {
	initOnce.Do(func() {
		var m *Manager
		m, initErr = New(ctx, opts, registrables...)
		if initErr == nil {
			current.Store(m)
		}
	})
	return current.Load(), initErr
}

// Get returns the process-wide manager. Calling it before a successful
// Initialize is a programming error and panics.
func Get() *Manager {
	m := current.Load()
	if m == nil {
		panic("manager: not initialized")
	}
	return m
}

// New builds a manager that is independent of the process-wide one.
func New(ctx context.Context, opts Options, registrables ...runtime.Registrable) (*Manager, error) {
	if opts.Tasks == nil || opts.Files == nil {
		return nil, errors.InitializationFailure("task manager and file system are required", nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PreflightCacheSize <= 0 {
		opts.PreflightCacheSize = DefaultPreflightCacheSize
	}
	cfg := opts.Runtime
	if cfg.Observer == nil && opts.Metrics != nil {
		cfg.Observer = opts.Metrics
	}

	preflight, err := lru.New[uint64, *runtime.Summary](opts.PreflightCacheSize)
	if err != nil {
		return nil, errors.InitializationFailure("preflight cache", err)
	}

	rt, err := runtime.NewBuilder().WithConfig(cfg).Register(registrables...).Build(ctx)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("manager initialized", zap.Int("symbols", len(rt.Symbols())))
	return &Manager{
		runtime:   rt,
		tasks:     opts.Tasks,
		files:     opts.Files,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		preflight: preflight,
	}, nil
}

// Runtime returns the underlying runtime.
func (m *Manager) Runtime() *runtime.Runtime {
	return m.runtime
}

// Inspect summarizes buffer, reusing the summary of an identical binary.
func (m *Manager) Inspect(buffer []byte) (*runtime.Summary, error) {
	digest := xxhash.Sum64(buffer)
	if s, ok := m.preflight.Get(digest); ok {
		return s, nil
	}
	s, err := runtime.Inspect(buffer)
	if err != nil {
		return nil, err
	}
	m.preflight.Add(digest, s)
	return s, nil
}

// Execute runs the guest program in buffer for task t with the given
// files of t as standard streams. A zero stackSize means
// runtime.DefaultStackSize.
//
// The returned status is the entry point's i32 result, or the code the
// guest passed to proc_exit. Failures to load, link or run the guest are
// returned as errors.
func (m *Manager) Execute(
	ctx context.Context,
	buffer []byte,
	stackSize uint32,
	stdin, stdout, stderr vfs.FileIdentifier,
	t task.Identifier,
) (uint32, error) {
	if stackSize == 0 {
		stackSize = runtime.DefaultStackSize
	}

	run := uuid.New()
	logger := m.logger.With(
		zap.String("run", run.String()),
		zap.Uint32("task", uint32(t)))

	var done func(uint32, error)
	if m.metrics != nil {
		done = m.metrics.StartExecution()
	}
	start := time.Now()

	resolver := abicontext.TaskResolverFunc(func(context.Context) (task.Identifier, error) {
		if _, err := m.tasks.Name(t); err != nil {
			return 0, err
		}
		return t, nil
	})
	status, err := abicontext.Call(ctx, abicontext.Instance(), resolver, func(ctx context.Context) (uint32, error) {
		return m.execute(ctx, logger, run, buffer, stackSize, [3]vfs.FileIdentifier{stdin, stdout, stderr}, t)
	})

	if done != nil {
		done(status, err)
	}
	if err != nil {
		logger.Warn("guest run failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return 0, err
	}
	logger.Info("guest run finished",
		zap.Uint32("status", status),
		zap.Duration("elapsed", time.Since(start)))
	return status, nil
}

func (m *Manager) execute(
	ctx context.Context,
	logger *zap.Logger,
	run uuid.UUID,
	buffer []byte,
	stackSize uint32,
	streams [3]vfs.FileIdentifier,
	t task.Identifier,
) (status uint32, err error) {
	summary, err := m.Inspect(buffer)
	if err != nil {
		return 0, err
	}
	if err := m.runtime.CheckImports(summary); err != nil {
		return 0, err
	}
	if !summary.Exports(EntryPoint) {
		return 0, errors.FunctionNotFound(EntryPoint)
	}
	for _, id := range streams {
		if _, err := m.files.GetFileMetadata(t, id); err != nil {
			return 0, errors.Wrap(errors.PhaseInstantiate, errors.KindFileSystem, err,
				fmt.Sprintf("standard stream %d", id))
		}
	}

	module, err := runtime.NewModule(ctx, m.runtime, buffer, runtime.ModuleOptions{
		Stdin:       m.files.Stream(t, streams[0]),
		Stdout:      m.files.Stream(t, streams[1]),
		Stderr:      m.files.Stream(t, streams[2]),
		Environment: m.tasks,
		Name:        run.String(),
		Task:        t,
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := module.Close(ctx); cerr != nil {
			logger.Warn("module close failed", zap.Error(cerr))
		}
	}()

	instance, err := runtime.NewInstance(ctx, m.runtime, module, stackSize)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := instance.Close(ctx); cerr != nil {
			logger.Warn("instance close failed", zap.Error(cerr))
		}
	}()

	logger.Debug("guest started", zap.Uint32("stack_size", stackSize))
	results, err := instance.CallMain(ctx)
	if err != nil {
		if code, ok := errors.ExitCode(err); ok {
			return code, nil
		}
		return 0, err
	}
	if len(results) > 0 {
		status = uint32(results[0])
	}
	return status, nil
}

// Close releases the runtime. Running guests must have returned.
func (m *Manager) Close(ctx context.Context) error {
	m.preflight.Purge()
	return m.runtime.Close(ctx)
}
