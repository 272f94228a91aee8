package vfs

import (
	"io/fs"
	"os"
	"time"
)

// FileIdentifier names an open file or directory within one task.
//
//	0               invalid
//	1, 2, 3         standard in, out and error
//	4 .. 0x7FFF     files
//	0x8000 .. 0xFFFF directories
type FileIdentifier uint16

const (
	InvalidIdentifier FileIdentifier = 0
	StandardIn        FileIdentifier = 1
	StandardOut       FileIdentifier = 2
	StandardError     FileIdentifier = 3

	firstFile      FileIdentifier = 4
	lastFile       FileIdentifier = 0x7FFF
	directoryFlag  FileIdentifier = 0x8000
	firstDirectory                = directoryFlag
	lastDirectory  FileIdentifier = 0xFFFF
)

// IsDirectory reports whether id names an open directory.
func (id FileIdentifier) IsDirectory() bool {
	return id&directoryFlag != 0
}

// IsStandard reports whether id is one of the standard streams.
func (id FileIdentifier) IsStandard() bool {
	return id >= StandardIn && id <= StandardError
}

// Flags is the open mode passed by guests. Bits 0-1 select access, bits
// 2-4 creation behaviour and bits 5-8 the file state.
type Flags uint16

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagCreate
	FlagExclusive
	FlagTruncate
	FlagAppend
	FlagNonBlocking
	FlagSynchronous
	FlagSynchronousDataOnly

	FlagReadWrite = FlagRead | FlagWrite
	flagMask      = FlagSynchronousDataOnly<<1 - 1
)

// Has reports whether all bits of other are set.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// osFlags converts guest flags to os.OpenFile flags.
func (f Flags) osFlags() (int, error) {
	if f&^flagMask != 0 {
		return 0, &Error{Op: "open", Code: CodeInvalidFlags}
	}

	var flag int
	switch {
	case f.Has(FlagReadWrite):
		flag = os.O_RDWR
	case f.Has(FlagWrite):
		flag = os.O_WRONLY
	case f.Has(FlagRead):
		flag = os.O_RDONLY
	default:
		return 0, &Error{Op: "open", Code: CodeInvalidFlags}
	}

	if f.Has(FlagCreate) {
		flag |= os.O_CREATE
	}
	if f.Has(FlagExclusive) {
		if !f.Has(FlagCreate) {
			return 0, &Error{Op: "open", Code: CodeInvalidFlags}
		}
		flag |= os.O_EXCL
	}
	if f.Has(FlagTruncate) {
		flag |= os.O_TRUNC
	}
	if f.Has(FlagAppend) {
		flag |= os.O_APPEND
	}
	if f.Has(FlagSynchronous) || f.Has(FlagSynchronousDataOnly) {
		flag |= os.O_SYNC
	}
	return flag, nil
}

// Kind is the type of a file system object.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
	KindBlockDevice
	KindCharacterDevice
	KindPipe
	KindSocket
	KindSymbolicLink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindBlockDevice:
		return "block device"
	case KindCharacterDevice:
		return "character device"
	case KindPipe:
		return "pipe"
	case KindSocket:
		return "socket"
	case KindSymbolicLink:
		return "symbolic link"
	default:
		return "unknown"
	}
}

func kindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDirectory
	case mode&fs.ModeSymlink != 0:
		return KindSymbolicLink
	case mode&fs.ModeNamedPipe != 0:
		return KindPipe
	case mode&fs.ModeSocket != 0:
		return KindSocket
	case mode&fs.ModeCharDevice != 0:
		return KindCharacterDevice
	case mode&fs.ModeDevice != 0:
		return KindBlockDevice
	default:
		return KindFile
	}
}

// Whence selects the origin of SetPosition.
type Whence uint8

const (
	WhenceStart Whence = iota
	WhenceCurrent
	WhenceEnd
)

// Metadata describes a file system object.
type Metadata struct {
	ModificationTime time.Time
	Size             uint64
	Permissions      fs.FileMode
	Kind             Kind
}

func metadataOf(info fs.FileInfo) Metadata {
	return Metadata{
		Kind:             kindOf(info.Mode()),
		Size:             uint64(info.Size()),
		Permissions:      info.Mode().Perm(),
		ModificationTime: info.ModTime(),
	}
}

// Entry is one directory entry.
type Entry struct {
	Name string
	Size uint64
	Kind Kind
}
