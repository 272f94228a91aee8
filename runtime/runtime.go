package runtime

import (
	"context"
	"io/fs"
	"sort"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// NativeModuleName is the import module under which native symbols are
// exposed to guest code.
const NativeModuleName = "host"

// NativeFunction implements a native symbol. Parameters are read from
// stack in signature order and the result, if any, is written to stack[0].
type NativeFunction func(env *Environment, stack []uint64)

// FunctionDescriptor is one (name, signature, function) triple.
type FunctionDescriptor struct {
	Function  NativeFunction
	Name      string
	Signature string
}

// Registrable is a collection of native symbols.
type Registrable interface {
	Name() string
	Functions() []FunctionDescriptor
}

// LibraryProvider is implemented by collections that ship a guest-side
// library module. The binary is instantiated once under the collection
// name so guests can import from it.
type LibraryProvider interface {
	Binary() []byte
}

// HostCallObserver is notified after every native symbol invocation.
type HostCallObserver interface {
	ObserveHostCall(symbol string, elapsed time.Duration)
}

// Symbol describes a registered native symbol.
type Symbol struct {
	Name       string
	Collection string
	Signature  Signature
}

// Config holds configuration for runtime creation
type Config struct {
	// RootFS is pre-opened as "/" for every module. Nil means no preopen.
	RootFS fs.FS

	// Observer receives host call timings. Optional.
	Observer HostCallObserver

	// CompilationCacheDir persists compiled modules across processes.
	// Empty disables the on-disk cache.
	CompilationCacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Runtime owns the engine and the immutable native symbol table.
type Runtime struct {
	runtime   wazero.Runtime
	cache     wazero.CompilationCache
	rootFS    fs.FS
	observer  HostCallObserver
	symbols   map[string]Symbol
	libraries map[string]struct{}
}

// Builder collects registrables before the runtime is built.
type Builder struct {
	config       Config
	registrables []Registrable
}

// NewBuilder creates a runtime builder with default configuration.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig replaces the runtime configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// Register adds native symbol collections.
func (b *Builder) Register(r ...Registrable) *Builder {
	b.registrables = append(b.registrables, r...)
	return b
}

// Build creates the engine, registers every native symbol and instantiates
// the process-system-interface and any library modules. Any failure is
// reported as InitializationFailure and leaves nothing running.
func (b *Builder) Build(ctx context.Context) (*Runtime, error) {
	symbols, err := collectSymbols(b.registrables)
	if err != nil {
		return nil, err
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if b.config.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(b.config.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if b.config.CompilationCacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(b.config.CompilationCacheDir)
		if err != nil {
			return nil, errors.InitializationFailure("open compilation cache", err)
		}
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	rt := &Runtime{
		runtime:   wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:     cache,
		rootFS:    b.config.RootFS,
		observer:  b.config.Observer,
		symbols:   make(map[string]Symbol, len(symbols)),
		libraries: make(map[string]struct{}),
	}

	if err := rt.registerSymbols(ctx, symbols); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	if err := instantiatePSI(ctx, rt.runtime); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.InitializationFailure("instantiate process system interface", err)
	}

	if err := rt.instantiateLibraries(ctx, b.registrables); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("runtime built",
		zap.Int("symbols", len(rt.symbols)),
		zap.Int("libraries", len(rt.libraries)))
	return rt, nil
}

type pendingSymbol struct {
	fn  NativeFunction
	sym Symbol
}

func collectSymbols(registrables []Registrable) ([]pendingSymbol, error) {
	var out []pendingSymbol
	seen := make(map[string]string)

	for _, r := range registrables {
		for _, d := range r.Functions() {
			if d.Name == "" {
				return nil, errors.InitializationFailure(
					"collection "+r.Name()+": empty symbol name", nil)
			}
			if d.Function == nil {
				return nil, errors.InitializationFailure(
					"symbol "+d.Name+": nil function", nil)
			}
			if prev, dup := seen[d.Name]; dup {
				return nil, errors.New(errors.PhaseRegister, errors.KindInitializationFailure).
					Detail("duplicate symbol %q (registered by %s and %s)", d.Name, prev, r.Name()).
					Build()
			}
			sig, err := ParseSignature(d.Signature)
			if err != nil {
				return nil, errors.InitializationFailure("symbol "+d.Name, err)
			}
			seen[d.Name] = r.Name()
			out = append(out, pendingSymbol{
				fn:  d.Function,
				sym: Symbol{Name: d.Name, Collection: r.Name(), Signature: sig},
			})
		}
	}
	return out, nil
}

func (r *Runtime) registerSymbols(ctx context.Context, symbols []pendingSymbol) error {
	builder := r.runtime.NewHostModuleBuilder(NativeModuleName)
	for _, p := range symbols {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(r.wrap(p.sym.Name, p.fn), p.sym.Signature.ParamTypes(), p.sym.Signature.ResultTypes()).
			Export(p.sym.Name)
		r.symbols[p.sym.Name] = p.sym
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.InitializationFailure("register native symbols", err)
	}
	return nil
}

func (r *Runtime) wrap(name string, fn NativeFunction) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		start := time.Now()
		fn(FromRawPointer(ctx, mod), stack)
		if r.observer != nil {
			r.observer.ObserveHostCall(name, time.Since(start))
		}
	}
}

func (r *Runtime) instantiateLibraries(ctx context.Context, registrables []Registrable) error {
	for _, reg := range registrables {
		lib, ok := reg.(LibraryProvider)
		if !ok {
			continue
		}
		binary := lib.Binary()
		if len(binary) == 0 {
			continue
		}

		compiled, err := r.runtime.CompileModule(ctx, binary)
		if err != nil {
			return errors.InitializationFailure("compile library "+reg.Name(), err)
		}
		cfg := wazero.NewModuleConfig().WithName(reg.Name()).WithStartFunctions()
		if _, err := r.runtime.InstantiateModule(ctx, compiled, cfg); err != nil {
			return errors.InitializationFailure("instantiate library "+reg.Name(), err)
		}
		r.libraries[reg.Name()] = struct{}{}
	}
	return nil
}

// Symbols returns a copy of the native symbol table sorted by name.
func (r *Runtime) Symbols() []Symbol {
	out := make([]Symbol, 0, len(r.symbols))
	for _, s := range r.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// HasSymbol reports whether name is a registered native symbol.
func (r *Runtime) HasSymbol(name string) bool {
	_, ok := r.symbols[name]
	return ok
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.runtime.Close(ctx)
	if r.cache != nil {
		if cerr := r.cache.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
