package resource

import (
	"fmt"
	"reflect"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/task"
)

// SlotCount is the size of the per-task slot space.
const SlotCount = 1 << 16

// Slot is the guest-visible opaque handle of a host object.
type Slot = uint16

type reverseKey struct {
	pointer any
	task    task.Identifier
}

type taskSlots struct {
	// every slot below cursor is occupied
	cursor uint32
	used   uint32
}

// TranslationMap maps host object pointers to per-task opaque slots and
// back. The two directions are always mutual inverses for live entries.
//
// The map holds references for lookup only; it never owns the objects it
// indexes. It is not safe for concurrent use: it belongs to exactly one
// instance and is only touched by the task driving that instance.
type TranslationMap struct {
	toNative map[uint64]any
	toGuest  map[reverseKey]Slot
	tasks    map[task.Identifier]*taskSlots
}

// NewTranslationMap creates an empty map.
func NewTranslationMap() *TranslationMap {
	return &TranslationMap{
		toNative: make(map[uint64]any),
		toGuest:  make(map[reverseKey]Slot),
		tasks:    make(map[task.Identifier]*taskSlots),
	}
}

// CompositeKey packs a task identifier and a slot into the lookup key.
func CompositeKey(t task.Identifier, slot Slot) uint64 {
	return uint64(t)<<32 | uint64(slot)
}

// Insert registers pointer for task t and returns its slot. Inserting a
// pointer that is already registered for t returns the existing slot.
func (m *TranslationMap) Insert(t task.Identifier, pointer any) (Slot, error) {
	if err := validatePointer(pointer); err != nil {
		return 0, err
	}

	if slot, ok := m.toGuest[reverseKey{task: t, pointer: pointer}]; ok {
		return slot, nil
	}

	slots := m.tasks[t]
	if slots == nil {
		slots = &taskSlots{}
		m.tasks[t] = slots
	}
	if slots.used >= SlotCount {
		return 0, errors.New(errors.PhaseTranslate, errors.KindPointerTableFull).
			Detail("task %d has no free slot", t).
			Build()
	}

	for candidate := slots.cursor; candidate < SlotCount; candidate++ {
		slot := Slot(candidate)
		key := CompositeKey(t, slot)
		if _, taken := m.toNative[key]; taken {
			continue
		}
		m.toNative[key] = pointer
		m.toGuest[reverseKey{task: t, pointer: pointer}] = slot
		slots.cursor = candidate + 1
		slots.used++
		return slot, nil
	}

	return 0, errors.New(errors.PhaseTranslate, errors.KindPointerTableFull).
		Detail("task %d has no free slot", t).
		Build()
}

// NativePointer returns the host object registered under (t, slot).
func (m *TranslationMap) NativePointer(t task.Identifier, slot Slot) (any, error) {
	value, ok := m.toNative[CompositeKey(t, slot)]
	if !ok {
		return nil, nativeNotFound(t, slot)
	}
	return value, nil
}

// WasmPointer returns the slot under which pointer is registered for t.
func (m *TranslationMap) WasmPointer(t task.Identifier, pointer any) (Slot, error) {
	if validatePointer(pointer) == nil {
		if slot, ok := m.toGuest[reverseKey{task: t, pointer: pointer}]; ok {
			return slot, nil
		}
	}
	return 0, errors.New(errors.PhaseTranslate, errors.KindWasmPointerNotFound).
		Detail("task %d: %T not registered", t, pointer).
		Build()
}

// Remove erases both directions of the entry and returns the object it
// referenced. Removing an unknown handle fails.
func (m *TranslationMap) Remove(t task.Identifier, slot Slot) (any, error) {
	key := CompositeKey(t, slot)
	value, ok := m.toNative[key]
	if !ok {
		return nil, nativeNotFound(t, slot)
	}

	delete(m.toNative, key)
	delete(m.toGuest, reverseKey{task: t, pointer: value})

	slots := m.tasks[t]
	slots.used--
	if uint32(slot) < slots.cursor {
		slots.cursor = uint32(slot)
	}
	if slots.used == 0 {
		delete(m.tasks, t)
	}

	return value, nil
}

// Len returns the number of live entries.
func (m *TranslationMap) Len() int {
	return len(m.toNative)
}

// Each iterates over all live entries until fn returns false.
func (m *TranslationMap) Each(fn func(t task.Identifier, slot Slot, value any) bool) {
	for key, value := range m.toNative {
		if !fn(task.Identifier(key>>32), Slot(key), value) {
			return
		}
	}
}

// Release forgets every entry. Referenced objects are left untouched.
func (m *TranslationMap) Release() {
	clear(m.toNative)
	clear(m.toGuest)
	clear(m.tasks)
}

// GetNativePointer resolves (t, slot) to a host object of type *T.
// An unknown pair or an object of another type is NativePointerNotFound.
func GetNativePointer[T any](m *TranslationMap, t task.Identifier, slot Slot) (*T, error) {
	value, err := m.NativePointer(t, slot)
	if err != nil {
		return nil, err
	}
	typed, ok := value.(*T)
	if !ok {
		return nil, errors.New(errors.PhaseTranslate, errors.KindNativePointerNotFound).
			Detail("task %d slot %d holds %T, not %s", t, slot, value, typeName[T]()).
			Build()
	}
	return typed, nil
}

// Remove erases (t, slot) if it holds a *T and returns the object.
// The entry is left in place when the type does not match.
func Remove[T any](m *TranslationMap, t task.Identifier, slot Slot) (*T, error) {
	typed, err := GetNativePointer[T](m, t, slot)
	if err != nil {
		return nil, err
	}
	if _, err := m.Remove(t, slot); err != nil {
		return nil, err
	}
	return typed, nil
}

func validatePointer(pointer any) error {
	if pointer == nil {
		return errors.InvalidPointer(errors.PhaseTranslate, "nil host pointer")
	}
	v := reflect.ValueOf(pointer)
	switch v.Kind() {
	case reflect.Pointer, reflect.UnsafePointer:
		if v.IsNil() {
			return errors.InvalidPointer(errors.PhaseTranslate, fmt.Sprintf("nil %T", pointer))
		}
		return nil
	default:
		return errors.InvalidPointer(errors.PhaseTranslate, fmt.Sprintf("%T is not a pointer", pointer))
	}
}

func nativeNotFound(t task.Identifier, slot Slot) error {
	return errors.New(errors.PhaseTranslate, errors.KindNativePointerNotFound).
		Detail("task %d slot %d", t, slot).
		Build()
}

func typeName[T any]() string {
	return reflect.TypeFor[*T]().String()
}
