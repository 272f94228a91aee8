// Package wasmbridge runs untrusted WebAssembly programs and exposes a fixed
// set of host services to them through a narrow C-calling-convention ABI.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmbridge/          Root package with core Memory and Allocator interfaces
//	├── runtime/         Engine wrapper: Runtime, Module, Instance, Environment
//	├── resource/        Opaque handle table (TranslationMap)
//	├── abicontext/      Process-wide "current task" gate
//	├── manager/         Load, instantiate, execute and tear down one guest run
//	├── bindings/        Native symbol collections (file system, task, graphics, network)
//	├── task/            Task identities and environments
//	├── vfs/             Per-task file tables over afero
//	├── graphics/        Object tree rendered with lipgloss
//	├── network/         DNS resolution and TCP connections
//	├── metrics/         Prometheus collectors
//	├── config/          Configuration loading
//	├── errors/          Error taxonomy and ABI status codes
//	└── cmd/wasm-bridge/ Command-line runner (run, inspect, symbols)
//
// # Quick Start
//
// Run a guest program on behalf of a task:
//
//	m, err := manager.Initialize(ctx, manager.Options{Tasks: tasks, Files: files},
//	    bindings.FileSystem(files), bindings.Task(tasks))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	status, err := m.Execute(ctx, wasmBytes, runtime.DefaultStackSize,
//	    vfs.StandardIn, vfs.StandardOut, vfs.StandardError, taskID)
//
// # Native Symbols
//
// Host functions are registered as (name, C signature, function) triples:
//
//	runtime.FunctionDescriptor{
//	    Name:      "xila_file_system_close",
//	    Signature: "(i)i",
//	    Function:  closeFile,
//	}
//
// Every host function returns a 32-bit status: 0 on success, otherwise the
// discriminant of the failing errors.Kind.
package wasmbridge
