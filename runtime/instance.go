package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

const (
	// MinimumStackSize is the smallest call stack an instance accepts.
	MinimumStackSize uint32 = 4 * 1024

	// DefaultStackSize is the call stack size used when none is configured.
	DefaultStackSize uint32 = 64 * 1024
)

// Guest allocator exports, in lookup order.
const (
	allocateExport       = "Allocate"
	deallocateExport     = "Deallocate"
	libcAllocateExport   = "malloc"
	libcDeallocateExport = "free"
)

// Instance is an instantiated Module. It owns the custom data native
// functions attach to it and reclaims that data exactly once on Close.
type Instance struct {
	module    *Module
	instance  api.Module
	slot      *customDataSlot
	stackSize uint32
}

// NewInstance instantiates module with a call stack of stackSize bytes.
// The engine grows its own stacks; stackSize is validated and recorded so
// callers keep the same contract across engines.
func NewInstance(ctx context.Context, rt *Runtime, module *Module, stackSize uint32) (*Instance, error) {
	if module == nil || module.compiled == nil {
		return nil, errors.InstantiationFailure("module is closed", nil)
	}
	if module.runtime != rt {
		return nil, errors.InstantiationFailure("module belongs to another runtime", nil)
	}
	if stackSize < MinimumStackSize {
		return nil, errors.InstantiationFailure(
			fmt.Sprintf("stack size %d below minimum %d", stackSize, MinimumStackSize), nil)
	}

	slot := &customDataSlot{}
	mod, err := rt.runtime.InstantiateModule(withSlot(ctx, slot), module.compiled, module.config)
	if err != nil {
		return nil, errors.InstantiationFailure("instantiate "+module.name, err)
	}

	Logger().Debug("instance created",
		zap.String("module", module.name),
		zap.Uint32("stack_size", stackSize))

	return &Instance{
		module:    module,
		instance:  mod,
		slot:      slot,
		stackSize: stackSize,
	}, nil
}

// StackSize returns the call stack size the instance was created with.
func (i *Instance) StackSize() uint32 {
	return i.stackSize
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module {
	return i.module
}

// Environment returns an environment bound to this instance, for host
// code that runs outside a native function call.
func (i *Instance) Environment(ctx context.Context) *Environment {
	return FromRawPointer(withSlot(ctx, i.slot), i.instance)
}

// CallExportedFunction invokes an export by name. An empty argument list
// against an export that declares exactly one parameter passes a single
// zero, the entry point convention of guests built for this host.
func (i *Instance) CallExportedFunction(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if i.instance == nil {
		return nil, errors.InternalError(errors.PhaseExecute, "instance is closed")
	}

	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.FunctionNotFound(name)
	}
	if len(args) == 0 && len(fn.Definition().ParamTypes()) == 1 {
		args = []uint64{0}
	}

	results, err := fn.Call(withSlot(ctx, i.slot), args...)
	if err != nil {
		return nil, errors.ExecutionError(name, err)
	}
	return results, nil
}

// CallMain runs the guest entry point.
func (i *Instance) CallMain(ctx context.Context) ([]uint64, error) {
	return i.CallExportedFunction(ctx, "_start")
}

func (i *Instance) exportedFunction(names ...string) api.Function {
	for _, name := range names {
		if fn := i.instance.ExportedFunction(name); fn != nil {
			return fn
		}
	}
	return nil
}

// Allocate reserves size bytes in linear memory through the guest allocator.
func (i *Instance) Allocate(ctx context.Context, size uint32) (uint32, error) {
	fn := i.exportedFunction(allocateExport, libcAllocateExport)
	if fn == nil {
		return 0, errors.FunctionNotFound(allocateExport)
	}

	results, err := fn.Call(withSlot(ctx, i.slot), uint64(size))
	if err != nil {
		return 0, errors.AllocationFailure(size, err)
	}
	if len(results) != 1 || uint32(results[0]) == 0 {
		return 0, errors.AllocationFailure(size, nil)
	}
	return uint32(results[0]), nil
}

// Deallocate returns memory obtained from Allocate to the guest allocator.
func (i *Instance) Deallocate(ctx context.Context, address uint32) error {
	fn := i.exportedFunction(deallocateExport, libcDeallocateExport)
	if fn == nil {
		return errors.FunctionNotFound(deallocateExport)
	}
	if _, err := fn.Call(withSlot(ctx, i.slot), uint64(address)); err != nil {
		return errors.ExecutionError(fn.Definition().Name(), err)
	}
	return nil
}

// HasCustomData reports whether a native function attached custom data.
func (i *Instance) HasCustomData() bool {
	return i.slot.occupied()
}

// Close reclaims the custom data, if any was created, and then tears down
// the engine instance. Closing twice is a no-op.
func (i *Instance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}

	if data, ok := i.slot.take(); ok {
		if r, ok := data.(Releaser); ok {
			r.Release()
		}
		Logger().Debug("custom data reclaimed", zap.String("module", i.module.name))
	}

	err := i.instance.Close(ctx)
	i.instance = nil
	return err
}

var _ wasmbridge.Allocator = (*Instance)(nil)
