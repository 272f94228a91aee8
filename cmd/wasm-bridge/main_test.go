package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
	"github.com/wippyai/wasm-bridge/manager"
	"github.com/wippyai/wasm-bridge/runtime"
)

// helloGuest prints "Hello" on stdout and returns 7.
func helloGuest(t *testing.T) string {
	t.Helper()
	i32 := []api.ValueType{wasmtest.I32}
	b := wasmtest.New()
	fdWrite := b.Import(runtime.PSIModuleName, "fd_write",
		[]api.ValueType{wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32}, i32)
	b.Memory(1)
	b.Data(0x40, []byte("Hello"))
	b.Data(0x80, []byte{0x40, 0, 0, 0, 5, 0, 0, 0})
	b.Func("_start", nil, i32, nil,
		wasmtest.I32Const(1), wasmtest.I32Const(0x80), wasmtest.I32Const(1), wasmtest.I32Const(0x100),
		wasmtest.Call(fdWrite), wasmtest.Drop(),
		wasmtest.I32Const(7))

	path := filepath.Join(t.TempDir(), "hello.wasm")
	if err := os.WriteFile(path, b.Build(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHost_Run(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "error"
	h, err := newHost(&cfg, "hello")
	if err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	status, err := h.run(context.Background(), helloGuest(t), strings.NewReader(""), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if status != 7 {
		t.Fatalf("status = %d, want 7", status)
	}
	if stdout.String() != "Hello" {
		t.Fatalf("stdout = %q", stdout.String())
	}

	m := manager.Get()
	if m.Runtime() == nil || !m.Runtime().HasSymbol("xila_task_sleep") {
		t.Fatal("run did not initialize the process-wide manager with the host collections")
	}
}

func TestInspectCommand(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"inspect", "--log-level=error", helloGuest(t)})
	if err := root.Execute(); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf}
	p.printf("%s", p.paint(errorStyle, "plain"))
	if buf.String() != "plain" {
		t.Fatalf("unstyled printer wrote %q", buf.String())
	}
}
