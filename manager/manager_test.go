package manager

import (
	"bytes"
	"context"
	stderrors "errors"
	iofs "io/fs"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/bindings"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/task"
	"github.com/wippyai/wasm-bridge/vfs"
)

// Guest memory layout.
const (
	pathAddr  = 0x10
	helloAddr = 0x40
	idAddr    = 0x100
	countAddr = 0x108
	readAddr  = 0x200
	iovAddr   = 0x300
)

var (
	i32  = []api.ValueType{wasmtest.I32}
	abi4 = []api.ValueType{wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32}
)

// roundTripGuest opens path, writes "Hello", seeks back to the start,
// reads five bytes and returns 0 when they match what was written.
func roundTripGuest(path string) []byte {
	b := wasmtest.New()
	open := b.Import(runtime.NativeModuleName, "xila_file_system_open", abi4, i32)
	write := b.Import(runtime.NativeModuleName, "xila_file_system_write", abi4, i32)
	seek := b.Import(runtime.NativeModuleName, "xila_file_system_set_position",
		[]api.ValueType{wasmtest.I32, wasmtest.I64, wasmtest.I32, wasmtest.I32}, i32)
	read := b.Import(runtime.NativeModuleName, "xila_file_system_read", abi4, i32)
	closeFile := b.Import(runtime.NativeModuleName, "xila_file_system_close", i32, i32)

	const status, id = 0, 1
	id32 := func() []byte { return wasmtest.LocalGet(id) }
	call := func(fn uint32, args ...[]byte) []byte {
		var out []byte
		for _, a := range args {
			out = append(out, a...)
		}
		out = append(out, wasmtest.Call(fn)...)
		out = append(out, wasmtest.LocalSet(status)...)
		return append(out, wasmtest.ReturnIfNonZero(status)...)
	}
	// mismatch returns code when the i32 at a differs from the i32 at b.
	mismatch := func(a, b []byte, code int32) []byte {
		var out []byte
		for _, part := range [][]byte{a, b, wasmtest.I32Ne(), wasmtest.If(), wasmtest.I32Const(code), wasmtest.Return(), wasmtest.End()} {
			out = append(out, part...)
		}
		return out
	}
	load := func(addr uint32) []byte {
		return append(wasmtest.I32Const(0), wasmtest.I32Load(addr)...)
	}

	b.Memory(1)
	b.Data(pathAddr, []byte(path))
	b.Data(helloAddr, []byte("Hello"))
	b.Func("_start", nil, i32, []api.ValueType{wasmtest.I32, wasmtest.I32},
		call(open, wasmtest.I32Const(pathAddr), wasmtest.I32Const(int32(len(path))),
			wasmtest.I32Const(int32(vfs.FlagReadWrite|vfs.FlagCreate|vfs.FlagTruncate)), wasmtest.I32Const(idAddr)),
		load(idAddr), wasmtest.LocalSet(id),
		call(write, id32(), wasmtest.I32Const(helloAddr), wasmtest.I32Const(5), wasmtest.I32Const(countAddr)),
		mismatch(load(countAddr), wasmtest.I32Const(5), 100),
		call(seek, id32(), wasmtest.I64Const(0), wasmtest.I32Const(int32(vfs.WhenceStart)), wasmtest.I32Const(countAddr)),
		call(read, id32(), wasmtest.I32Const(readAddr), wasmtest.I32Const(5), wasmtest.I32Const(countAddr)),
		mismatch(load(countAddr), wasmtest.I32Const(5), 101),
		mismatch(load(readAddr), load(helloAddr), 1),
		mismatch(load(readAddr+1), load(helloAddr+1), 1),
		call(closeFile, id32()),
		wasmtest.I32Const(0),
	)
	return b.Build()
}

type fixture struct {
	manager *Manager
	tasks   *task.Manager
	files   *vfs.VirtualFileSystem
	task    task.Identifier
	stdout  *bytes.Buffer
	metrics *metrics.Collectors
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	tasks := task.NewManager()
	id, err := tasks.NewTask("guest", 0)
	if err != nil {
		t.Fatal(err)
	}
	files := vfs.NewMemory(nil)
	stdout := &bytes.Buffer{}
	if err := files.InsertStream(id, vfs.StandardIn, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := files.InsertStream(id, vfs.StandardOut, nil, stdout); err != nil {
		t.Fatal(err)
	}
	if err := files.InsertStream(id, vfs.StandardError, nil, nil); err != nil {
		t.Fatal(err)
	}

	collectors := metrics.New()
	m, err := New(ctx, Options{Tasks: tasks, Files: files, Metrics: collectors},
		bindings.FileSystem(files), bindings.Task(tasks))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(ctx) })

	return &fixture{manager: m, tasks: tasks, files: files, task: id, stdout: stdout, metrics: collectors}
}

func (f *fixture) execute(t *testing.T, buffer []byte) (uint32, error) {
	t.Helper()
	return f.manager.Execute(context.Background(), buffer, 0,
		vfs.StandardIn, vfs.StandardOut, vfs.StandardError, f.task)
}

func TestGet_PanicsBeforeInitialize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Get did not panic")
		}
	}()
	Get()
}

func TestExecute_FileRoundTrip(t *testing.T) {
	f := newFixture(t)

	status, err := f.execute(t, roundTripGuest("/scratch.txt"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if status != 0 {
		t.Fatalf("guest status = %d, want 0", status)
	}

	content, err := iofs.ReadFile(f.files.IOFS(), "scratch.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "Hello" {
		t.Fatalf("scratch file = %q", content)
	}
	if open := f.files.OpenFiles(f.task); len(open) != 3 {
		t.Fatalf("open files after run = %v, want only the standard streams", open)
	}
}

func TestExecute_MissingEntryPoint(t *testing.T) {
	f := newFixture(t)

	b := wasmtest.New().Memory(1)
	b.Func("main", nil, i32, nil, wasmtest.I32Const(0))

	_, err := f.execute(t, b.Build())
	if !errors.IsKind(err, errors.KindFunctionNotFound) {
		t.Fatalf("Execute = %v, want FunctionNotFound", err)
	}
}

func TestExecute_MissingImport(t *testing.T) {
	f := newFixture(t)

	b := wasmtest.New()
	fn := b.Import(runtime.NativeModuleName, "xila_graphics_get_screen", i32, i32)
	b.Memory(1)
	b.Func("_start", nil, i32, nil, wasmtest.I32Const(0), wasmtest.Call(fn))

	_, err := f.execute(t, b.Build())
	if !errors.IsKind(err, errors.KindInvalidModule) {
		t.Fatalf("Execute = %v, want InvalidModule", err)
	}
	var missing *errors.MissingImportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("no MissingImportsError in %v", err)
	}
	if len(missing.Imports) != 1 || missing.Imports[0].Name != "xila_graphics_get_screen" {
		t.Fatalf("missing imports = %+v", missing.Imports)
	}
}

func TestExecute_Statuses(t *testing.T) {
	f := newFixture(t)

	exit := wasmtest.New()
	procExit := exit.Import(runtime.PSIModuleName, "proc_exit", i32, nil)
	exit.Memory(1)
	exit.Func("_start", nil, i32, nil, wasmtest.I32Const(3), wasmtest.Call(procExit), wasmtest.Unreachable())

	returned := wasmtest.New().Memory(1)
	returned.Func("_start", nil, i32, nil, wasmtest.I32Const(42))

	trap := wasmtest.New().Memory(1)
	trap.Func("_start", nil, i32, nil, wasmtest.Unreachable())

	tests := []struct {
		name   string
		guest  []byte
		status uint32
		kind   errors.Kind
	}{
		{"proc_exit", exit.Build(), 3, 0},
		{"return value", returned.Build(), 42, 0},
		{"trap", trap.Build(), 0, errors.KindExecutionError},
		{"malformed", []byte("\x00asm\x01"), 0, errors.KindCompilationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := f.execute(t, tt.guest)
			if tt.kind != 0 {
				if !errors.IsKind(err, tt.kind) {
					t.Fatalf("Execute = %v, want %s", err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if status != tt.status {
				t.Fatalf("status = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestExecute_StandardStreams(t *testing.T) {
	f := newFixture(t)

	b := wasmtest.New()
	fdWrite := b.Import(runtime.PSIModuleName, "fd_write", abi4, i32)
	b.Memory(1)
	b.Data(helloAddr, []byte("Hello"))
	b.Data(iovAddr, []byte{helloAddr, 0, 0, 0, 5, 0, 0, 0})
	b.Func("_start", nil, i32, nil,
		wasmtest.I32Const(1), wasmtest.I32Const(iovAddr), wasmtest.I32Const(1), wasmtest.I32Const(countAddr),
		wasmtest.Call(fdWrite))

	status, err := f.execute(t, b.Build())
	if err != nil || status != 0 {
		t.Fatalf("Execute = %d, %v", status, err)
	}
	if f.stdout.String() != "Hello" {
		t.Fatalf("stdout = %q", f.stdout.String())
	}

	// streams must be open files of the task
	if err := f.files.Close(f.task, vfs.StandardOut); err != nil {
		t.Fatal(err)
	}
	if _, err := f.execute(t, b.Build()); !errors.IsKind(err, errors.KindFileSystem) {
		t.Fatalf("Execute without stdout = %v, want FileSystem", err)
	}
}

func TestExecute_Environment(t *testing.T) {
	f := newFixture(t)
	if err := f.tasks.SetEnvironmentVariable(f.task, "MODE", "test"); err != nil {
		t.Fatal(err)
	}

	// environ_sizes_get reports the count and buffer size of NAME=value entries
	b := wasmtest.New()
	sizes := b.Import(runtime.PSIModuleName, "environ_sizes_get", []api.ValueType{wasmtest.I32, wasmtest.I32}, i32)
	b.Memory(1)
	b.Func("_start", nil, i32, nil,
		wasmtest.I32Const(idAddr), wasmtest.I32Const(countAddr), wasmtest.Call(sizes), wasmtest.Drop(),
		wasmtest.I32Const(0), wasmtest.I32Load(idAddr))

	status, err := f.execute(t, b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if status != 1 {
		t.Fatalf("guest saw %d environment variables, want 1", status)
	}
}

func TestExecute_UnknownTask(t *testing.T) {
	f := newFixture(t)

	returned := wasmtest.New().Memory(1)
	returned.Func("_start", nil, i32, nil, wasmtest.I32Const(0))

	_, err := f.manager.Execute(context.Background(), returned.Build(), 0,
		vfs.StandardIn, vfs.StandardOut, vfs.StandardError, f.task+100)
	if !errors.IsKind(err, errors.KindFailedToGetTaskInformations) {
		t.Fatalf("Execute = %v, want FailedToGetTaskInformations", err)
	}
}

func TestExecute_StackSize(t *testing.T) {
	f := newFixture(t)

	returned := wasmtest.New().Memory(1)
	returned.Func("_start", nil, i32, nil, wasmtest.I32Const(0))

	_, err := f.manager.Execute(context.Background(), returned.Build(), runtime.MinimumStackSize-1,
		vfs.StandardIn, vfs.StandardOut, vfs.StandardError, f.task)
	if !errors.IsKind(err, errors.KindInstantiationFailure) {
		t.Fatalf("Execute = %v, want InstantiationFailure", err)
	}
}

func TestManager_PreflightCache(t *testing.T) {
	f := newFixture(t)
	guest := roundTripGuest("/cached.txt")

	for range 3 {
		if status, err := f.execute(t, guest); err != nil || status != 0 {
			t.Fatalf("Execute = %d, %v", status, err)
		}
	}
	if n := f.manager.preflight.Len(); n != 1 {
		t.Fatalf("preflight cache holds %d entries, want 1", n)
	}

	first, err := f.manager.Inspect(guest)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := f.manager.Inspect(guest)
	if first != second {
		t.Fatal("identical binaries inspected twice")
	}
}

func TestManager_Metrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	if err := f.metrics.Register(reg); err != nil {
		t.Fatal(err)
	}

	if _, err := f.execute(t, roundTripGuest("/metrics.txt")); err != nil {
		t.Fatal(err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, name := range []string{"wasm_bridge_executions_total", "wasm_bridge_host_calls_total"} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if !errors.IsKind(err, errors.KindInitializationFailure) {
		t.Fatalf("New = %v, want InitializationFailure", err)
	}
}

func TestInitialize_Singleton(t *testing.T) {
	ctx := context.Background()
	tasks := task.NewManager()
	files := vfs.NewMemory(nil)

	first, err := Initialize(ctx, Options{Tasks: tasks, Files: files}, bindings.Task(tasks))
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	second, err := Initialize(ctx, Options{})
	if err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if first != second || Get() != first {
		t.Fatal("Initialize is not idempotent")
	}
}
