// Package errors provides the error taxonomy of the guest/host bridge.
//
// Errors are categorized by Phase (where in a guest run the error occurred)
// and Kind (error category). A Kind doubles as the 32-bit status code handed
// back to guest code across the ABI: 0 is success, any other value is the
// discriminant of the failing Kind.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseTranslate, errors.KindInvalidPointer).
//		Detail("address %#x outside linear memory", addr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.FunctionNotFound("_start")
//	err := errors.CompilationError(cause)
//
// Host stubs convert any error to a status with Status. All errors
// implement the standard error interface and support errors.Is/As.
package errors
