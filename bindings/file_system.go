package bindings

import (
	stderrors "errors"
	"io"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/vfs"
)

// metadataABI is the guest layout written by get_metadata.
type metadataABI struct {
	Kind        uint32
	Permissions uint32
	Size        uint64
	Modified    int64
}

// entryABI is the guest layout written by read_directory. A zero
// NameLength marks the end of the directory. An entry whose name does not
// fit the buffer is consumed and reported as InvalidArgument.
type entryABI struct {
	NameLength uint32
	Kind       uint32
	Size       uint64
}

// FileSystemCollection exposes a vfs.VirtualFileSystem to guests.
type FileSystemCollection struct {
	collection
	files *vfs.VirtualFileSystem
}

// FileSystem returns the xila_file_system_* symbols backed by files.
func FileSystem(files *vfs.VirtualFileSystem) *FileSystemCollection {
	c := &FileSystemCollection{files: files}
	c.collection = collection{
		name: "xila_file_system",
		functions: []runtime.FunctionDescriptor{
			{Name: "xila_file_system_open", Signature: "(*~i*)i", Function: c.open},
			{Name: "xila_file_system_read", Signature: "(i*~*)i", Function: c.read},
			{Name: "xila_file_system_write", Signature: "(i*~*)i", Function: c.write},
			{Name: "xila_file_system_set_position", Signature: "(iIi*)i", Function: c.setPosition},
			{Name: "xila_file_system_close", Signature: "(i)i", Function: c.close},
			{Name: "xila_file_system_get_metadata", Signature: "(*~*)i", Function: c.getMetadata},
			{Name: "xila_file_system_open_directory", Signature: "(*~*)i", Function: c.openDirectory},
			{Name: "xila_file_system_read_directory", Signature: "(i*~*)i", Function: c.readDirectory},
			{Name: "xila_file_system_close_directory", Signature: "(i)i", Function: c.closeDirectory},
			{Name: "xila_file_system_create_directory", Signature: "(*~)i", Function: c.createDirectory},
			{Name: "xila_file_system_remove", Signature: "(*~)i", Function: c.remove},
			{Name: "xila_file_system_rename", Signature: "(*~*~)i", Function: c.rename},
		},
	}
	return c
}

func fileSystemError(op string, err error) error {
	return wrap(errors.KindFileSystem, op, err)
}

func fileIdentifier(v uint64) (vfs.FileIdentifier, error) {
	if v == 0 || v > 0xFFFF {
		return vfs.InvalidIdentifier, errors.InvalidArgument("file identifier out of range")
	}
	return vfs.FileIdentifier(v), nil
}

func (c *FileSystemCollection) open(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_open", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		path, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		out := uint32(stack[3])
		if err := output(env, out, 4); err != nil {
			return err
		}

		id, err := c.files.Open(env.Context(), data.task, path, vfs.Flags(stack[2]))
		if err != nil {
			return fileSystemError("open "+path, err)
		}
		return env.WriteUint32(out, uint32(id))
	})
}

func (c *FileSystemCollection) read(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_read", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		id, err := fileIdentifier(stack[0])
		if err != nil {
			return err
		}
		buf, err := env.TranslateSliceToHost(uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			return err
		}
		out := uint32(stack[3])
		if err := output(env, out, 4); err != nil {
			return err
		}

		n, err := c.files.Read(data.task, id, buf)
		if err != nil {
			return fileSystemError("read", err)
		}
		return env.WriteUint32(out, uint32(n))
	})
}

func (c *FileSystemCollection) write(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_write", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		id, err := fileIdentifier(stack[0])
		if err != nil {
			return err
		}
		buf, err := env.TranslateSliceToHost(uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			return err
		}
		out := uint32(stack[3])
		if err := output(env, out, 4); err != nil {
			return err
		}

		n, err := c.files.Write(data.task, id, buf)
		if err != nil {
			return fileSystemError("write", err)
		}
		return env.WriteUint32(out, uint32(n))
	})
}

func (c *FileSystemCollection) setPosition(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_set_position", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		id, err := fileIdentifier(stack[0])
		if err != nil {
			return err
		}
		position, ok := runtime.TranslateToHost[uint64](env, uint32(stack[3]))
		if !ok {
			return errors.InvalidPointer(errors.PhaseTranslate, "position output")
		}

		pos, err := c.files.SetPosition(data.task, id, int64(stack[1]), vfs.Whence(stack[2]))
		if err != nil {
			return fileSystemError("set_position", err)
		}
		*position = pos
		return nil
	})
}

func (c *FileSystemCollection) close(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_close", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		id, err := fileIdentifier(stack[0])
		if err != nil {
			return err
		}
		return fileSystemError("close", c.files.Close(data.task, id))
	})
}

func (c *FileSystemCollection) getMetadata(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_get_metadata", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		path, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		out, ok := runtime.TranslateToHost[metadataABI](env, uint32(stack[2]))
		if !ok {
			return errors.InvalidPointer(errors.PhaseTranslate, "metadata output")
		}

		md, err := c.files.GetMetadata(env.Context(), data.task, path)
		if err != nil {
			return fileSystemError("get_metadata "+path, err)
		}
		*out = metadataABI{
			Kind:        uint32(md.Kind),
			Permissions: uint32(md.Permissions),
			Size:        md.Size,
			Modified:    md.ModificationTime.UnixNano(),
		}
		return nil
	})
}

func (c *FileSystemCollection) openDirectory(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_open_directory", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		path, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		out := uint32(stack[2])
		if err := output(env, out, 4); err != nil {
			return err
		}

		id, err := c.files.OpenDirectory(env.Context(), data.task, path)
		if err != nil {
			return fileSystemError("open_directory "+path, err)
		}
		return env.WriteUint32(out, uint32(id))
	})
}

func (c *FileSystemCollection) readDirectory(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_read_directory", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		id, err := fileIdentifier(stack[0])
		if err != nil {
			return err
		}
		name, err := env.TranslateSliceToHost(uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			return err
		}
		out, ok := runtime.TranslateToHost[entryABI](env, uint32(stack[3]))
		if !ok {
			return errors.InvalidPointer(errors.PhaseTranslate, "entry output")
		}

		entry, err := c.files.ReadDirectory(data.task, id)
		if stderrors.Is(err, io.EOF) {
			*out = entryABI{}
			return nil
		}
		if err != nil {
			return fileSystemError("read_directory", err)
		}
		if len(entry.Name) > len(name) {
			return errors.InvalidArgument("name buffer too small for " + entry.Name)
		}
		copy(name, entry.Name)
		*out = entryABI{
			NameLength: uint32(len(entry.Name)),
			Kind:       uint32(entry.Kind),
			Size:       entry.Size,
		}
		return nil
	})
}

func (c *FileSystemCollection) closeDirectory(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_close_directory", func() error {
		data, err := customData(env)
		if err != nil {
			return err
		}
		id, err := fileIdentifier(stack[0])
		if err != nil {
			return err
		}
		return fileSystemError("close_directory", c.files.CloseDirectory(data.task, id))
	})
}

func (c *FileSystemCollection) createDirectory(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_create_directory", func() error {
		path, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		return fileSystemError("create_directory "+path, c.files.CreateDirectory(env.Context(), path))
	})
}

func (c *FileSystemCollection) remove(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_remove", func() error {
		path, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		return fileSystemError("remove "+path, c.files.Remove(env.Context(), path))
	})
}

func (c *FileSystemCollection) rename(env *runtime.Environment, stack []uint64) {
	finish(stack, "xila_file_system_rename", func() error {
		from, err := env.ReadString(uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			return err
		}
		to, err := env.ReadString(uint32(stack[2]), uint32(stack[3]))
		if err != nil {
			return err
		}
		return fileSystemError("rename "+from, c.files.Rename(env.Context(), from, to))
	})
}
