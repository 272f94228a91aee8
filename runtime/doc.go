// Package runtime hosts guest WebAssembly binaries and exposes native
// symbols to them.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.NewBuilder().
//	    Register(myCollection).
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := runtime.NewModule(ctx, rt, wasmBytes, runtime.ModuleOptions{
//	    Stdout: os.Stdout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close(ctx)
//
//	inst, err := runtime.NewInstance(ctx, rt, mod, runtime.DefaultStackSize)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	results, err := inst.CallMain(ctx)
//
// # Native Symbols
//
// A Registrable is a named collection of FunctionDescriptor values. Each
// descriptor carries a C signature string:
//
//	i  i32        I  i64
//	f  f32        F  f64
//	r  externref
//	*  guest address (i32)
//	~  byte length of the preceding '*' (i32)
//	$  guest address of a NUL-terminated string (i32)
//
// "(*~i)i" takes a buffer, its length and an i32 and returns an i32.
// Symbols are exported to guests under the "host" import module. Names
// must be unique across all collections; Build fails otherwise.
//
// # Custom Data
//
// Native functions attach per-instance state with
// GetOrInitializeCustomData. The data is created on the first call and
// reclaimed once when the instance is closed. Types implementing
// Releaser get their Release method called at that point.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. An Instance must be
// used from one goroutine at a time.
package runtime
