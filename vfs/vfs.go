package vfs

import (
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"path"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/task"
)

// File is what the file table needs from an open file. afero.File
// satisfies it, as do the stream adapters built by InsertStream.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

const (
	filePermissions      = 0o644
	directoryPermissions = 0o755
)

type table struct {
	files       map[FileIdentifier]File
	directories map[FileIdentifier]afero.File
}

func newTable() *table {
	return &table{
		files:       make(map[FileIdentifier]File),
		directories: make(map[FileIdentifier]afero.File),
	}
}

// VirtualFileSystem keeps per-task tables of open files on top of an
// afero file system.
type VirtualFileSystem struct {
	fs     afero.Fs
	tasks  map[task.Identifier]*table
	logger *zap.Logger
	mu     sync.Mutex
}

// New wraps fs. A nil logger disables logging.
func New(fs afero.Fs, logger *zap.Logger) *VirtualFileSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VirtualFileSystem{
		fs:     fs,
		tasks:  make(map[task.Identifier]*table),
		logger: logger,
	}
}

// NewOS serves the host directory root.
func NewOS(root string, logger *zap.Logger) *VirtualFileSystem {
	return New(afero.NewBasePathFs(afero.NewOsFs(), root), logger)
}

// NewMemory serves an empty in-memory file system.
func NewMemory(logger *zap.Logger) *VirtualFileSystem {
	return New(afero.NewMemMapFs(), logger)
}

// Fs returns the underlying file system.
func (v *VirtualFileSystem) Fs() afero.Fs {
	return v.fs
}

// IOFS exposes the file system as an io/fs.FS, suitable as a guest preopen.
func (v *VirtualFileSystem) IOFS() iofs.FS {
	return afero.NewIOFS(v.fs)
}

// clean maps a guest path, absolute or not, to the slash-free relative
// form shared by afero and io/fs.
func clean(p string) string {
	c := path.Clean("/" + p)
	if c == "/" {
		return "."
	}
	return c[1:]
}

func (v *VirtualFileSystem) tableOf(t task.Identifier) *table {
	tb, ok := v.tasks[t]
	if !ok {
		tb = newTable()
		v.tasks[t] = tb
	}
	return tb
}

func (v *VirtualFileSystem) file(op string, t task.Identifier, id FileIdentifier) (File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tb, ok := v.tasks[t]; ok {
		if f, ok := tb.files[id]; ok {
			return f, nil
		}
	}
	return nil, invalidIdentifier(op, id)
}

func (v *VirtualFileSystem) directory(op string, t task.Identifier, id FileIdentifier) (afero.File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tb, ok := v.tasks[t]; ok {
		if d, ok := tb.directories[id]; ok {
			return d, nil
		}
	}
	return nil, invalidIdentifier(op, id)
}

// Open opens path for task t and returns the lowest free file identifier.
func (v *VirtualFileSystem) Open(ctx context.Context, t task.Identifier, path string, flags Flags) (FileIdentifier, error) {
	if err := ctx.Err(); err != nil {
		return InvalidIdentifier, err
	}
	flag, err := flags.osFlags()
	if err != nil {
		return InvalidIdentifier, err
	}
	if path == "" {
		return InvalidIdentifier, &Error{Op: "open", Code: CodeInvalidParameter}
	}
	path = clean(path)

	f, err := v.fs.OpenFile(path, flag, filePermissions)
	if err != nil {
		return InvalidIdentifier, mapOSError("open", path, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		_ = f.Close()
		return InvalidIdentifier, &Error{Op: "open", Path: path, Code: CodeIsDirectory}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	tb := v.tableOf(t)
	for id := firstFile; id <= lastFile; id++ {
		if _, used := tb.files[id]; !used {
			tb.files[id] = f
			v.logger.Debug("file opened",
				zap.Uint32("task", uint32(t)),
				zap.String("path", path),
				zap.Uint16("identifier", uint16(id)))
			return id, nil
		}
	}

	_ = f.Close()
	return InvalidIdentifier, &Error{Op: "open", Path: path, Code: CodeTooManyOpenFiles}
}

// Read reads into buf. End of file is reported as zero bytes, not an error.
func (v *VirtualFileSystem) Read(t task.Identifier, id FileIdentifier, buf []byte) (int, error) {
	f, err := v.file("read", t, id)
	if err != nil {
		return 0, err
	}
	n, err := f.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, mapOSError("read", "", err)
}

// Write writes data and returns the number of bytes written.
func (v *VirtualFileSystem) Write(t task.Identifier, id FileIdentifier, data []byte) (int, error) {
	f, err := v.file("write", t, id)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(data)
	return n, mapOSError("write", "", err)
}

// SetPosition moves the file offset and returns the new absolute position.
func (v *VirtualFileSystem) SetPosition(t task.Identifier, id FileIdentifier, offset int64, whence Whence) (uint64, error) {
	f, err := v.file("set_position", t, id)
	if err != nil {
		return 0, err
	}

	var w int
	switch whence {
	case WhenceStart:
		w = io.SeekStart
	case WhenceCurrent:
		w = io.SeekCurrent
	case WhenceEnd:
		w = io.SeekEnd
	default:
		return 0, &Error{Op: "set_position", Code: CodeInvalidParameter}
	}

	pos, err := f.Seek(offset, w)
	if err != nil {
		return 0, mapOSError("set_position", "", err)
	}
	if pos < 0 {
		return 0, &Error{Op: "set_position", Code: CodeInvalidParameter}
	}
	return uint64(pos), nil
}

// Close closes a file of task t and frees its identifier.
func (v *VirtualFileSystem) Close(t task.Identifier, id FileIdentifier) error {
	v.mu.Lock()
	tb, ok := v.tasks[t]
	var f File
	if ok {
		f, ok = tb.files[id]
		delete(tb.files, id)
	}
	v.mu.Unlock()

	if !ok {
		return invalidIdentifier("close", id)
	}
	return mapOSError("close", "", f.Close())
}

// GetMetadata returns the metadata of path.
func (v *VirtualFileSystem) GetMetadata(ctx context.Context, _ task.Identifier, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	path = clean(path)
	info, err := v.fs.Stat(path)
	if err != nil {
		return Metadata{}, mapOSError("get_metadata", path, err)
	}
	return metadataOf(info), nil
}

// GetFileMetadata returns the metadata of an open file.
func (v *VirtualFileSystem) GetFileMetadata(t task.Identifier, id FileIdentifier) (Metadata, error) {
	f, err := v.file("get_metadata", t, id)
	if err != nil {
		return Metadata{}, err
	}
	st, ok := f.(interface{ Stat() (iofs.FileInfo, error) })
	if !ok {
		return Metadata{Kind: KindCharacterDevice}, nil
	}
	info, err := st.Stat()
	if err != nil {
		return Metadata{}, mapOSError("get_metadata", "", err)
	}
	return metadataOf(info), nil
}

// InsertFile places f in task t's table under id. The identifier must be
// a free standard stream or file identifier.
func (v *VirtualFileSystem) InsertFile(t task.Identifier, f File, id FileIdentifier) error {
	if f == nil || id == InvalidIdentifier || id.IsDirectory() {
		return invalidIdentifier("insert", id)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	tb := v.tableOf(t)
	if _, used := tb.files[id]; used {
		return &Error{Op: "insert", Code: CodeAlreadyExists}
	}
	tb.files[id] = f
	return nil
}

// InsertStream installs a stream backed by r and w under id. Either may be
// nil; a nil reader reads EOF and a nil writer discards.
func (v *VirtualFileSystem) InsertStream(t task.Identifier, id FileIdentifier, r io.Reader, w io.Writer) error {
	return v.InsertFile(t, newStream(r, w), id)
}

// OpenDirectory opens a directory for iteration.
func (v *VirtualFileSystem) OpenDirectory(ctx context.Context, t task.Identifier, path string) (FileIdentifier, error) {
	if err := ctx.Err(); err != nil {
		return InvalidIdentifier, err
	}
	path = clean(path)
	d, err := v.fs.Open(path)
	if err != nil {
		return InvalidIdentifier, mapOSError("open_directory", path, err)
	}
	info, err := d.Stat()
	if err != nil {
		_ = d.Close()
		return InvalidIdentifier, mapOSError("open_directory", path, err)
	}
	if !info.IsDir() {
		_ = d.Close()
		return InvalidIdentifier, &Error{Op: "open_directory", Path: path, Code: CodeNotDirectory}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	tb := v.tableOf(t)
	for id := firstDirectory; ; id++ {
		if _, used := tb.directories[id]; !used {
			tb.directories[id] = d
			return id, nil
		}
		if id == lastDirectory {
			break
		}
	}

	_ = d.Close()
	return InvalidIdentifier, &Error{Op: "open_directory", Path: path, Code: CodeTooManyOpenFiles}
}

// ReadDirectory returns the next entry of an open directory, or io.EOF
// once all entries have been returned.
func (v *VirtualFileSystem) ReadDirectory(t task.Identifier, id FileIdentifier) (Entry, error) {
	d, err := v.directory("read_directory", t, id)
	if err != nil {
		return Entry{}, err
	}
	infos, err := d.Readdir(1)
	if len(infos) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, mapOSError("read_directory", "", err)
	}
	info := infos[0]
	return Entry{Name: info.Name(), Kind: kindOf(info.Mode()), Size: uint64(info.Size())}, nil
}

// CloseDirectory closes an open directory.
func (v *VirtualFileSystem) CloseDirectory(t task.Identifier, id FileIdentifier) error {
	v.mu.Lock()
	tb, ok := v.tasks[t]
	var d afero.File
	if ok {
		d, ok = tb.directories[id]
		delete(tb.directories, id)
	}
	v.mu.Unlock()

	if !ok {
		return invalidIdentifier("close_directory", id)
	}
	return mapOSError("close_directory", "", d.Close())
}

// CreateDirectory creates a directory. The parent must exist.
func (v *VirtualFileSystem) CreateDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapOSError("create_directory", path, v.fs.Mkdir(clean(path), directoryPermissions))
}

// Remove removes a file or an empty directory.
func (v *VirtualFileSystem) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapOSError("remove", path, v.fs.Remove(clean(path)))
}

// Rename moves oldPath to newPath.
func (v *VirtualFileSystem) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapOSError("rename", oldPath, v.fs.Rename(clean(oldPath), clean(newPath)))
}

// OpenFiles lists the identifiers open in task t, files first.
func (v *VirtualFileSystem) OpenFiles(t task.Identifier) []FileIdentifier {
	v.mu.Lock()
	defer v.mu.Unlock()

	tb, ok := v.tasks[t]
	if !ok {
		return nil
	}
	ids := make([]FileIdentifier, 0, len(tb.files)+len(tb.directories))
	for id := range tb.files {
		ids = append(ids, id)
	}
	for id := range tb.directories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAll closes everything task t still holds and forgets the task.
func (v *VirtualFileSystem) CloseAll(t task.Identifier) error {
	v.mu.Lock()
	tb, ok := v.tasks[t]
	delete(v.tasks, t)
	v.mu.Unlock()

	if !ok {
		return nil
	}

	var errs []error
	for id, f := range tb.files {
		if err := f.Close(); err != nil {
			errs = append(errs, mapOSError("close", "", err))
		}
		delete(tb.files, id)
	}
	for id, d := range tb.directories {
		if err := d.Close(); err != nil {
			errs = append(errs, mapOSError("close_directory", "", err))
		}
		delete(tb.directories, id)
	}
	if len(errs) > 0 {
		v.logger.Warn("closing task files", zap.Uint32("task", uint32(t)), zap.Errors("errors", errs))
	}
	return errors.Join(errs...)
}
