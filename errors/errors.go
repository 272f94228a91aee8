package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/sys"
)

// Phase indicates where in a guest run the error occurred
type Phase string

const (
	PhaseRegister    Phase = "register"    // native symbol registration
	PhaseCompile     Phase = "compile"     // bytecode parsing
	PhaseInstantiate Phase = "instantiate" // instance creation
	PhaseExecute     Phase = "execute"     // guest execution
	PhaseTranslate   Phase = "translate"   // pointer and handle translation
	PhaseContext     Phase = "context"     // task context bridge
	PhaseHost        Phase = "host"        // host service forwarding
)

// Kind categorizes the error. Its numeric value is the status code
// returned to guest code across the ABI, so values must never be reused.
type Kind uint32

const (
	KindInvalidPointer              Kind = 1
	KindInvalidUTF8                 Kind = 2
	KindNotImplemented              Kind = 3
	KindInitializationFailure       Kind = 4
	KindCompilationError            Kind = 5
	KindInstantiationFailure        Kind = 6
	KindExecutionError              Kind = 7
	KindFunctionNotFound            Kind = 8
	KindAllocationFailure           Kind = 9
	KindFailedToGetTaskInformations Kind = 10
	KindPoisonedLock                Kind = 11
	KindInvalidModule               Kind = 12
	KindInternalError               Kind = 13
	KindInvalidThreadIdentifier     Kind = 14
	KindPointerTableFull            Kind = 15
	KindNativePointerNotFound       Kind = 16
	KindWasmPointerNotFound         Kind = 17
	KindFileSystem                  Kind = 18
	KindNetwork                     Kind = 19
	KindGraphics                    Kind = 20
	KindInvalidArgument             Kind = 21
)

var kindNames = map[Kind]string{
	KindInvalidPointer:              "invalid_pointer",
	KindInvalidUTF8:                 "invalid_utf8_string",
	KindNotImplemented:              "not_implemented",
	KindInitializationFailure:       "initialization_failure",
	KindCompilationError:            "compilation_error",
	KindInstantiationFailure:        "instantiation_failure",
	KindExecutionError:              "execution_error",
	KindFunctionNotFound:            "function_not_found",
	KindAllocationFailure:           "allocation_failure",
	KindFailedToGetTaskInformations: "failed_to_get_task_informations",
	KindPoisonedLock:                "poisoned_lock",
	KindInvalidModule:               "invalid_module",
	KindInternalError:               "internal_error",
	KindInvalidThreadIdentifier:     "invalid_thread_identifier",
	KindPointerTableFull:            "pointer_table_full",
	KindNativePointerNotFound:       "native_pointer_not_found",
	KindWasmPointerNotFound:         "wasm_pointer_not_found",
	KindFileSystem:                  "file_system",
	KindNetwork:                     "network",
	KindGraphics:                    "graphics",
	KindInvalidArgument:             "invalid_argument",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Status returns the ABI status code of the kind.
func (k Kind) Status() uint32 {
	return uint32(k)
}

// Error is the structured error type used throughout the bridge
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(e.Kind.String())

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Status returns the ABI status code for the error.
func (e *Error) Status() uint32 {
	return e.Kind.Status()
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// Status maps an error to the status code handed back to guest code.
// Nil is success; errors outside the taxonomy become internal errors.
func Status(err error) uint32 {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return KindInternalError.Status()
}

// ExitCode extracts the status a guest passed to proc_exit, if any.
func ExitCode(err error) (uint32, bool) {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// Convenience constructors for common error patterns

// InvalidPointer creates an error for a guest address that does not map
// into linear memory or is not a usable host reference.
func InvalidPointer(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidPointer,
		Detail: detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// NotImplemented creates an error for a host call that has no backing service.
func NotImplemented(what string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindNotImplemented,
		Detail: what,
	}
}

// InitializationFailure creates a runtime construction error
func InitializationFailure(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindInitializationFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// CompilationError carries the engine diagnostic for malformed bytecode.
func CompilationError(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompilationError,
		Detail: "compile module",
		Cause:  cause,
	}
}

// InstantiationFailure creates an instantiation error
func InstantiationFailure(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiationFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// ExecutionError wraps a trap, abort or exit raised by guest code.
func ExecutionError(function string, cause error) *Error {
	detail := fmt.Sprintf("call %s", function)
	if code, ok := ExitCode(cause); ok {
		detail = fmt.Sprintf("call %s: exit status %d", function, code)
	}
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindExecutionError,
		Detail: detail,
		Cause:  cause,
	}
}

// FunctionNotFound creates an error for a missing export
func FunctionNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindFunctionNotFound,
		Detail: fmt.Sprintf("function %q not found", name),
	}
}

// AllocationFailure creates an allocation failure error
func AllocationFailure(size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindAllocationFailure,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// FailedToGetTaskInformations wraps an error from the task collaborator.
func FailedToGetTaskInformations(cause error) *Error {
	return &Error{
		Phase:  PhaseContext,
		Kind:   KindFailedToGetTaskInformations,
		Detail: "resolve task",
		Cause:  cause,
	}
}

// InternalError creates an error for a broken bridge invariant that is
// still recoverable by the caller.
func InternalError(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternalError,
		Detail: detail,
	}
}

// InvalidArgument creates an error for a malformed host call argument
func InvalidArgument(detail string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindInvalidArgument,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved guest import
type MissingImport struct {
	Module string // e.g., "host"
	Name   string // e.g., "xila_file_system_open"
}

// MissingImportsError is returned when a guest imports native symbols the
// runtime does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#name" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		module, name := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module: module,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	m, n, found := strings.Cut(key, "#")
	if found {
		return m, n
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] invalid_module: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d native symbol(s):\n", len(e.Imports))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
	}

	for _, module := range order {
		b.WriteString("\n  ")
		b.WriteString(module)
		b.WriteString(":\n")
		for _, name := range byModule[module] {
			b.WriteString("    - ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}

// InvalidModule wraps a MissingImportsError or other structural problem in
// a guest binary detected before instantiation.
func InvalidModule(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInvalidModule,
		Detail: detail,
		Cause:  cause,
	}
}
