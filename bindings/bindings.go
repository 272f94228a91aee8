package bindings

import (
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/abicontext"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/network"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/task"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the bindings package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the bindings package's logger.
// This must be called before any runtime is built.
func SetLogger(l *zap.Logger) {
	logger = l
}

var errNoTask = stderrors.New("native call outside a task context")

// CustomData is the per-instance state shared by all collections: the
// task the instance runs for and the handles it was given for host
// objects.
type CustomData struct {
	handles *resource.TranslationMap
	task    task.Identifier
}

// InitializeCustomData binds the instance to the task in context.
func (d *CustomData) InitializeCustomData(*runtime.Environment) error {
	t, ok := abicontext.Instance().TryGetCurrentTaskIdentifier()
	if !ok {
		return errors.FailedToGetTaskInformations(errNoTask)
	}
	d.task = t
	d.handles = resource.NewTranslationMap()
	return nil
}

// Task returns the task the instance runs for.
func (d *CustomData) Task() task.Identifier {
	return d.task
}

// Handles returns the instance's handle table.
func (d *CustomData) Handles() *resource.TranslationMap {
	return d.handles
}

// Release closes connections the guest left open and drops every handle.
func (d *CustomData) Release() {
	var leaked []*network.Connection
	d.handles.Each(func(_ task.Identifier, _ resource.Slot, value any) bool {
		if c, ok := value.(*network.Connection); ok {
			leaked = append(leaked, c)
		}
		return true
	})
	for _, c := range leaked {
		_ = c.Close()
	}
	if len(leaked) > 0 {
		Logger().Debug("closed leaked connections",
			zap.Uint32("task", uint32(d.task)),
			zap.Int("count", len(leaked)))
	}
	d.handles.Release()
}

func customData(env *runtime.Environment) (*CustomData, error) {
	return runtime.GetOrInitializeCustomData[CustomData](env)
}

// finish runs a native call body and stores its status in stack[0].
func finish(stack []uint64, symbol string, fn func() error) {
	err := fn()
	if err != nil {
		Logger().Debug("native call failed",
			zap.String("symbol", symbol),
			zap.Uint32("status", errors.Status(err)),
			zap.Error(err))
	}
	stack[0] = uint64(errors.Status(err))
}

// wrap classifies a collaborator error unless it already carries a kind.
func wrap(kind errors.Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.Wrap(errors.PhaseHost, kind, err, op)
}

// output checks that an out-parameter of size bytes fits in memory before
// the call has side effects.
func output(env *runtime.Environment, address, size uint32) error {
	if !env.ValidateGuestRange(address, size) {
		return errors.InvalidPointer(errors.PhaseTranslate, "output outside linear memory")
	}
	return nil
}

// handle resolves a guest handle to a host object of type *T.
func handle[T any](data *CustomData, value uint64) (*T, error) {
	if value > uint64(resource.SlotCount-1) {
		return nil, errors.InvalidArgument("handle out of range")
	}
	return resource.GetNativePointer[T](data.handles, data.task, resource.Slot(value))
}

type collection struct {
	name      string
	functions []runtime.FunctionDescriptor
}

func (c *collection) Name() string {
	return c.name
}

func (c *collection) Functions() []runtime.FunctionDescriptor {
	return c.functions
}
