package vfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVFS_ReadWriteSeek(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	id, err := v.Open(ctx, 1, "/data.txt", FlagReadWrite|FlagCreate)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if id != 4 {
		t.Fatalf("first file identifier = %d, want 4", id)
	}

	n, err := v.Write(1, id, []byte("Hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	pos, err := v.SetPosition(1, id, 0, WhenceStart)
	if err != nil || pos != 0 {
		t.Fatalf("SetPosition() = %d, %v", pos, err)
	}

	buf := make([]byte, 16)
	n, err = v.Read(1, id, buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "Hello" {
		t.Fatalf("Read() = %q, want Hello", buf[:n])
	}

	// end of file is zero bytes
	n, err = v.Read(1, id, buf)
	if err != nil || n != 0 {
		t.Fatalf("Read at EOF = %d, %v", n, err)
	}

	if pos, err := v.SetPosition(1, id, -2, WhenceEnd); err != nil || pos != 3 {
		t.Fatalf("SetPosition(end-2) = %d, %v", pos, err)
	}
	if _, err := v.SetPosition(1, id, 0, Whence(9)); CodeOf(err) != CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter for bad whence, got %v", err)
	}

	md, err := v.GetFileMetadata(1, id)
	if err != nil || md.Size != 5 || md.Kind != KindFile {
		t.Fatalf("GetFileMetadata() = %+v, %v", md, err)
	}

	if err := v.Close(1, id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := v.Close(1, id); CodeOf(err) != CodeInvalidIdentifier {
		t.Fatalf("expected InvalidIdentifier on double close, got %v", err)
	}
}

func TestVFS_LowestFreeIdentifier(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	var ids []FileIdentifier
	for _, name := range []string{"a", "b", "c"} {
		id, err := v.Open(ctx, 1, name, FlagWrite|FlagCreate)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if diff := cmp.Diff([]FileIdentifier{4, 5, 6}, ids); diff != "" {
		t.Fatalf("identifiers (-want +got):\n%s", diff)
	}

	if err := v.Close(1, 5); err != nil {
		t.Fatal(err)
	}
	id, err := v.Open(ctx, 1, "d", FlagWrite|FlagCreate)
	if err != nil || id != 5 {
		t.Fatalf("reopen = %d, %v, want 5", id, err)
	}

	// another task starts from the bottom again
	id, err = v.Open(ctx, 2, "a", FlagRead)
	if err != nil || id != 4 {
		t.Fatalf("other task = %d, %v, want 4", id, err)
	}
}

func TestVFS_OpenErrors(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	if _, err := v.Open(ctx, 1, "exists", FlagWrite|FlagCreate); err != nil {
		t.Fatal(err)
	}
	if err := v.CreateDirectory(ctx, "/dir"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		path  string
		flags Flags
		want  Code
	}{
		{"missing", "/missing", FlagRead, CodeNotFound},
		{"exclusive on existing", "/exists", FlagWrite | FlagCreate | FlagExclusive, CodeAlreadyExists},
		{"no access mode", "/exists", FlagCreate, CodeInvalidFlags},
		{"exclusive without create", "/exists", FlagWrite | FlagExclusive, CodeInvalidFlags},
		{"unknown bits", "/exists", FlagRead | 1<<12, CodeInvalidFlags},
		{"directory", "/dir", FlagRead, CodeIsDirectory},
		{"empty path", "", FlagRead, CodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Open(ctx, 1, tt.path, tt.flags)
			if CodeOf(err) != tt.want {
				t.Fatalf("Open() error = %v, want code %s", err, tt.want)
			}
			if id != InvalidIdentifier {
				t.Fatalf("Open() returned identifier %d on error", id)
			}
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := v.Open(cancelled, 1, "exists", FlagRead); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestVFS_TaskIsolation(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	id, err := v.Open(ctx, 1, "private", FlagReadWrite|FlagCreate)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Write(2, id, []byte("x")); CodeOf(err) != CodeInvalidIdentifier {
		t.Fatalf("task 2 wrote to task 1's file: %v", err)
	}
	if _, err := v.Read(1, id+1, make([]byte, 1)); CodeOf(err) != CodeInvalidIdentifier {
		t.Fatalf("expected InvalidIdentifier, got %v", err)
	}
}

func TestVFS_Metadata(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	id, _ := v.Open(ctx, 1, "/file", FlagWrite|FlagCreate)
	_, _ = v.Write(1, id, []byte("0123456789"))
	_ = v.Close(1, id)
	_ = v.CreateDirectory(ctx, "/dir")

	md, err := v.GetMetadata(ctx, 1, "/file")
	if err != nil || md.Kind != KindFile || md.Size != 10 {
		t.Fatalf("file metadata = %+v, %v", md, err)
	}
	md, err = v.GetMetadata(ctx, 1, "dir")
	if err != nil || md.Kind != KindDirectory {
		t.Fatalf("directory metadata = %+v, %v", md, err)
	}
	if _, err := v.GetMetadata(ctx, 1, "/nope"); CodeOf(err) != CodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestVFS_Directories(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	if err := v.CreateDirectory(ctx, "/tree"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"/tree/a", "/tree/b"} {
		id, err := v.Open(ctx, 1, name, FlagWrite|FlagCreate)
		if err != nil {
			t.Fatal(err)
		}
		_ = v.Close(1, id)
	}
	if err := v.CreateDirectory(ctx, "/tree/sub"); err != nil {
		t.Fatal(err)
	}

	dir, err := v.OpenDirectory(ctx, 1, "/tree")
	if err != nil {
		t.Fatalf("OpenDirectory failed: %v", err)
	}
	if !dir.IsDirectory() || dir != 0x8000 {
		t.Fatalf("directory identifier = %#x", dir)
	}

	var names []string
	kinds := make(map[string]Kind)
	for {
		entry, err := v.ReadDirectory(1, dir)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadDirectory failed: %v", err)
		}
		names = append(names, entry.Name)
		kinds[entry.Name] = entry.Kind
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"a", "b", "sub"}, names); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	if kinds["sub"] != KindDirectory || kinds["a"] != KindFile {
		t.Fatalf("kinds = %v", kinds)
	}

	if _, err := v.Read(1, dir, make([]byte, 1)); CodeOf(err) != CodeInvalidIdentifier {
		t.Fatalf("directory readable as file: %v", err)
	}
	if err := v.CloseDirectory(1, dir); err != nil {
		t.Fatal(err)
	}
	if err := v.CloseDirectory(1, dir); CodeOf(err) != CodeInvalidIdentifier {
		t.Fatalf("expected InvalidIdentifier, got %v", err)
	}
	if _, err := v.OpenDirectory(ctx, 1, "/tree/a"); CodeOf(err) != CodeNotDirectory {
		t.Fatalf("expected NotDirectory, got %v", err)
	}
}

func TestVFS_RemoveRename(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	id, _ := v.Open(ctx, 1, "/old", FlagWrite|FlagCreate)
	_ = v.Close(1, id)

	if err := v.Rename(ctx, "/old", "/new"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if _, err := v.GetMetadata(ctx, 1, "/old"); CodeOf(err) != CodeNotFound {
		t.Fatalf("old path still present: %v", err)
	}
	if err := v.Remove(ctx, "/new"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := v.GetMetadata(ctx, 1, "/new"); CodeOf(err) != CodeNotFound {
		t.Fatalf("removed path still present: %v", err)
	}
}

func TestVFS_Streams(t *testing.T) {
	v := NewMemory(nil)
	var stdout bytes.Buffer

	if err := v.InsertStream(1, StandardIn, strings.NewReader("input"), nil); err != nil {
		t.Fatal(err)
	}
	if err := v.InsertStream(1, StandardOut, nil, &stdout); err != nil {
		t.Fatal(err)
	}
	if err := v.InsertStream(1, StandardOut, nil, &stdout); CodeOf(err) != CodeAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if err := v.InsertStream(1, 0x8001, nil, nil); CodeOf(err) != CodeInvalidIdentifier {
		t.Fatalf("expected InvalidIdentifier for directory slot, got %v", err)
	}

	if _, err := io.WriteString(v.Stream(1, StandardOut), "output"); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "output" {
		t.Fatalf("stdout = %q", stdout.String())
	}

	in, err := io.ReadAll(v.Stream(1, StandardIn))
	if err != nil || string(in) != "input" {
		t.Fatalf("stdin = %q, %v", in, err)
	}

	if _, err := v.SetPosition(1, StandardOut, 0, WhenceStart); CodeOf(err) != CodeUnsupportedOperation {
		t.Fatalf("expected UnsupportedOperation, got %v", err)
	}

	// a regular file can stand in for a standard stream
	ctx := context.Background()
	id, _ := v.Open(ctx, 2, "/log", FlagReadWrite|FlagCreate)
	h := v.Stream(2, id)
	if _, err := h.Write([]byte("to file")); err != nil {
		t.Fatal(err)
	}
	md, _ := v.GetFileMetadata(2, id)
	if md.Size != 7 {
		t.Fatalf("file size = %d, want 7", md.Size)
	}
}

func TestVFS_CloseAll(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	_ = v.InsertStream(1, StandardOut, nil, io.Discard)
	id, _ := v.Open(ctx, 1, "/f", FlagWrite|FlagCreate)
	dir, _ := v.OpenDirectory(ctx, 1, "/")

	if diff := cmp.Diff([]FileIdentifier{StandardOut, id, dir}, v.OpenFiles(1)); diff != "" {
		t.Fatalf("open files (-want +got):\n%s", diff)
	}

	if err := v.CloseAll(1); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if got := v.OpenFiles(1); len(got) != 0 {
		t.Fatalf("files left open: %v", got)
	}
	if _, err := v.Write(1, id, []byte("x")); CodeOf(err) != CodeInvalidIdentifier {
		t.Fatalf("write after CloseAll: %v", err)
	}
	if err := v.CloseAll(1); err != nil {
		t.Fatalf("second CloseAll failed: %v", err)
	}
}

func TestVFS_IOFS(t *testing.T) {
	v := NewMemory(nil)
	ctx := context.Background()

	id, _ := v.Open(ctx, 1, "/shared.txt", FlagWrite|FlagCreate)
	_, _ = v.Write(1, id, []byte("visible"))
	_ = v.Close(1, id)

	data, err := iofs.ReadFile(v.IOFS(), "shared.txt")
	if err != nil || string(data) != "visible" {
		t.Fatalf("ReadFile() = %q, %v", data, err)
	}
}

func TestFlags_OSFlags(t *testing.T) {
	if _, err := Flags(0).osFlags(); CodeOf(err) != CodeInvalidFlags {
		t.Fatal("empty flags accepted")
	}
	for _, f := range []Flags{FlagRead, FlagWrite, FlagReadWrite, FlagWrite | FlagAppend | FlagTruncate | FlagCreate} {
		if _, err := f.osFlags(); err != nil {
			t.Errorf("osFlags(%#x) failed: %v", f, err)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := mapOSError("open", "x", iofs.ErrNotExist)
	if !errors.Is(err, iofs.ErrNotExist) {
		t.Fatal("cause lost")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Error() = %q", err.Error())
	}
	if CodeOf(nil) != 0 || CodeOf(errors.New("x")) != CodeInputOutput {
		t.Fatal("CodeOf fallback wrong")
	}
}
