package vfs

import (
	"io"

	"github.com/wippyai/wasm-bridge/task"
)

// stream adapts a reader and writer pair to File. Closing it leaves the
// underlying reader and writer open.
type stream struct {
	r io.Reader
	w io.Writer
}

func newStream(r io.Reader, w io.Writer) *stream {
	return &stream{r: r, w: w}
}

func (s *stream) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, io.EOF
	}
	return s.r.Read(p)
}

func (s *stream) Write(p []byte) (int, error) {
	if s.w == nil {
		return len(p), nil
	}
	return s.w.Write(p)
}

func (s *stream) Seek(int64, int) (int64, error) {
	return 0, &Error{Op: "set_position", Code: CodeUnsupportedOperation}
}

func (s *stream) Close() error {
	return nil
}

// Handle is an io.ReadWriter over one entry of a task's file table. It is
// used to hand a vfs file to the guest as a standard stream.
type Handle struct {
	vfs  *VirtualFileSystem
	task task.Identifier
	id   FileIdentifier
}

// Stream returns a handle on file id of task t. The identifier is resolved
// on every call, so the handle follows later InsertFile and Close calls.
func (v *VirtualFileSystem) Stream(t task.Identifier, id FileIdentifier) *Handle {
	return &Handle{vfs: v, task: t, id: id}
}

// Read returns io.EOF when the file has no more data.
func (h *Handle) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := h.vfs.Read(h.task, h.id, p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (h *Handle) Write(p []byte) (int, error) {
	return h.vfs.Write(h.task, h.id, p)
}

// Identifier returns the file identifier the handle refers to.
func (h *Handle) Identifier() FileIdentifier {
	return h.id
}
