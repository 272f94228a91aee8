package vfs

import (
	"errors"
	"io/fs"
	"strconv"
	"syscall"
)

// Code classifies a file system failure.
type Code uint8

const (
	CodeInputOutput Code = iota + 1
	CodePermissionDenied
	CodeNotFound
	CodeAlreadyExists
	CodeInvalidIdentifier
	CodeTooManyOpenFiles
	CodeInvalidFlags
	CodeInvalidParameter
	CodeNotDirectory
	CodeIsDirectory
	CodeDirectoryNotEmpty
	CodeNameTooLong
	CodeNoSpaceLeft
	CodeReadOnly
	CodeUnsupportedOperation
)

var codeNames = map[Code]string{
	CodeInputOutput:          "input/output error",
	CodePermissionDenied:     "permission denied",
	CodeNotFound:             "not found",
	CodeAlreadyExists:        "already exists",
	CodeInvalidIdentifier:    "invalid identifier",
	CodeTooManyOpenFiles:     "too many open files",
	CodeInvalidFlags:         "invalid flags",
	CodeInvalidParameter:     "invalid parameter",
	CodeNotDirectory:         "not a directory",
	CodeIsDirectory:          "is a directory",
	CodeDirectoryNotEmpty:    "directory not empty",
	CodeNameTooLong:          "name too long",
	CodeNoSpaceLeft:          "no space left",
	CodeReadOnly:             "read-only",
	CodeUnsupportedOperation: "unsupported operation",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Error is a file system failure.
type Error struct {
	Err  error
	Op   string
	Path string
	Code Code
}

func (e *Error) Error() string {
	msg := "vfs: " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of a vfs error, or CodeInputOutput for other
// non-nil errors.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInputOutput
}

func invalidIdentifier(op string, id FileIdentifier) *Error {
	return &Error{Op: op, Code: CodeInvalidIdentifier, Err: errors.New("identifier " + strconv.Itoa(int(id)))}
}

func mapOSError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}

	code := CodeInputOutput
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = CodeNotFound
	case errors.Is(err, fs.ErrPermission):
		code = CodePermissionDenied
	case errors.Is(err, fs.ErrExist):
		code = CodeAlreadyExists
	default:
		var errno syscall.Errno
		if errors.As(err, &errno) {
			code = mapErrno(errno)
		}
	}
	return &Error{Op: op, Path: path, Code: code, Err: err}
}

func mapErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return CodePermissionDenied
	case syscall.ENOENT:
		return CodeNotFound
	case syscall.EEXIST:
		return CodeAlreadyExists
	case syscall.ENOTDIR:
		return CodeNotDirectory
	case syscall.EISDIR:
		return CodeIsDirectory
	case syscall.ENOTEMPTY:
		return CodeDirectoryNotEmpty
	case syscall.ENAMETOOLONG:
		return CodeNameTooLong
	case syscall.ENOSPC:
		return CodeNoSpaceLeft
	case syscall.EROFS:
		return CodeReadOnly
	case syscall.EINVAL:
		return CodeInvalidParameter
	case syscall.EBADF:
		return CodeInvalidIdentifier
	case syscall.EMFILE, syscall.ENFILE:
		return CodeTooManyOpenFiles
	default:
		return CodeInputOutput
	}
}
