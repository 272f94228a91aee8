package runtime

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"unicode/utf8"
	"unsafe"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
)

// CustomDataInitializer is implemented by custom data types that need
// more than a zero value. It runs once, when the data is first created.
type CustomDataInitializer interface {
	InitializeCustomData(env *Environment) error
}

// Releaser is implemented by custom data that holds resources to give
// back when its instance is closed.
type Releaser interface {
	Release()
}

// customDataSlot is the per-instance user data slot. It is filled at most
// once and reclaimed at most once; taken stays set after reclamation so a
// late host call cannot resurrect the data.
type customDataSlot struct {
	value any
	mu    sync.Mutex
	taken bool
}

func (s *customDataSlot) take() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.taken {
		return nil, false
	}
	s.taken = true
	v := s.value
	s.value = nil
	return v, v != nil
}

func (s *customDataSlot) occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value != nil
}

type slotKey struct{}

func withSlot(ctx context.Context, s *customDataSlot) context.Context {
	return context.WithValue(ctx, slotKey{}, s)
}

// Environment is the per-call view a native function gets of the calling
// instance. It is only valid for the duration of that call and must not be
// retained.
type Environment struct {
	ctx    context.Context
	module api.Module
}

// FromRawPointer builds the environment for the module the engine handed
// to a native function. mod must not be nil.
func FromRawPointer(ctx context.Context, mod api.Module) *Environment {
	return &Environment{ctx: ctx, module: mod}
}

// Context returns the context of the guest call.
func (e *Environment) Context() context.Context {
	return e.ctx
}

// Module returns the calling module.
func (e *Environment) Module() api.Module {
	return e.module
}

// Memory returns the calling module's linear memory.
func (e *Environment) Memory() *Memory {
	return &Memory{mem: e.module.Memory()}
}

// GetOrInitializeCustomData returns the custom data of the calling
// instance, creating it on first use. It is the only place custom data is
// created, so an instance never has more than one block.
func GetOrInitializeCustomData[T any](e *Environment) (*T, error) {
	slot, ok := e.ctx.Value(slotKey{}).(*customDataSlot)
	if !ok {
		return nil, errors.InternalError(errors.PhaseHost, "call is not bound to an instance")
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.taken {
		return nil, errors.InternalError(errors.PhaseHost, "custom data already reclaimed")
	}

	if slot.value != nil {
		data, ok := slot.value.(*T)
		if !ok {
			return nil, errors.InternalError(errors.PhaseHost,
				fmt.Sprintf("custom data is %T, not %T", slot.value, data))
		}
		return data, nil
	}

	data := new(T)
	if init, ok := any(data).(CustomDataInitializer); ok {
		if err := init.InitializeCustomData(e); err != nil {
			return nil, err
		}
	}
	slot.value = data
	return data, nil
}

// TranslateToHost maps a guest address to a host pointer to T. It reports
// false when [address, address+sizeof(T)) is outside linear memory or the
// host address is not aligned for T.
//
// T must not contain Go pointers. The result aliases linear memory and is
// invalidated by memory growth, so it must not outlive the native call.
func TranslateToHost[T any](e *Environment, address uint32) (*T, bool) {
	mem := e.module.Memory()
	if mem == nil {
		return nil, false
	}

	var zero T
	size := uint32(unsafe.Sizeof(zero))
	if size == 0 {
		if address >= mem.Size() {
			return nil, false
		}
		size = 1
	}

	buf, ok := mem.Read(address, size)
	if !ok {
		return nil, false
	}
	p := unsafe.Pointer(unsafe.SliceData(buf))
	if uintptr(p)%unsafe.Alignof(zero) != 0 {
		return nil, false
	}
	return (*T)(p), true
}

// TranslateToGuest maps a host pointer back to a guest address. Only
// pointers into the calling module's linear memory have a guest address;
// host-resident objects are exposed through resource.TranslationMap.
func TranslateToGuest[T any](e *Environment, pointer *T) (uint32, bool) {
	if pointer == nil {
		return 0, false
	}
	mem := e.module.Memory()
	if mem == nil || mem.Size() == 0 {
		return 0, false
	}
	buf, ok := mem.Read(0, mem.Size())
	if !ok {
		return 0, false
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	addr := uintptr(unsafe.Pointer(pointer))
	size := unsafe.Sizeof(*pointer)
	if addr < base || addr-base+size > uintptr(len(buf)) {
		return 0, false
	}
	return uint32(addr - base), true
}

// ValidateGuestRange reports whether [address, address+length) lies inside
// linear memory.
func (e *Environment) ValidateGuestRange(address, length uint32) bool {
	mem := e.module.Memory()
	if mem == nil {
		return false
	}
	end := uint64(address) + uint64(length)
	return end <= uint64(mem.Size())
}

// TranslateSliceToHost returns a view of [address, address+length).
// The view aliases linear memory.
func (e *Environment) TranslateSliceToHost(address, length uint32) ([]byte, error) {
	mem := e.module.Memory()
	if mem == nil {
		return nil, errors.InvalidPointer(errors.PhaseTranslate, "module has no memory")
	}
	buf, ok := mem.Read(address, length)
	if !ok {
		return nil, errors.InvalidPointer(errors.PhaseTranslate,
			fmt.Sprintf("range %#x+%d outside linear memory", address, length))
	}
	return buf, nil
}

// ReadString copies a UTF-8 string of length bytes out of linear memory.
func (e *Environment) ReadString(address, length uint32) (string, error) {
	buf, err := e.TranslateSliceToHost(address, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", errors.InvalidUTF8(errors.PhaseTranslate, buf)
	}
	return string(buf), nil
}

// ReadCString copies a NUL-terminated UTF-8 string out of linear memory.
func (e *Environment) ReadCString(address uint32) (string, error) {
	mem := e.module.Memory()
	if mem == nil || address >= mem.Size() {
		return "", errors.InvalidPointer(errors.PhaseTranslate,
			fmt.Sprintf("string at %#x outside linear memory", address))
	}
	buf, _ := mem.Read(address, mem.Size()-address)
	end := bytes.IndexByte(buf, 0)
	if end < 0 {
		return "", errors.InvalidPointer(errors.PhaseTranslate,
			fmt.Sprintf("string at %#x is not terminated", address))
	}
	if !utf8.Valid(buf[:end]) {
		return "", errors.InvalidUTF8(errors.PhaseTranslate, buf[:end])
	}
	return string(buf[:end]), nil
}

// WriteBytes copies data into linear memory at address.
func (e *Environment) WriteBytes(address uint32, data []byte) error {
	return e.Memory().Write(address, data)
}

// WriteUint16 stores a little-endian value at address.
func (e *Environment) WriteUint16(address uint32, value uint16) error {
	return e.Memory().WriteU16(address, value)
}

// WriteUint32 stores a little-endian value at address.
func (e *Environment) WriteUint32(address uint32, value uint32) error {
	return e.Memory().WriteU32(address, value)
}

// WriteUint64 stores a little-endian value at address.
func (e *Environment) WriteUint64(address uint32, value uint64) error {
	return e.Memory().WriteU64(address, value)
}
