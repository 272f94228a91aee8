package resource

import (
	"testing"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/task"
)

type widget struct {
	name string
}

type socket struct {
	fd int
}

func TestTranslationMap_Basic(t *testing.T) {
	m := NewTranslationMap()
	w := &widget{name: "button"}

	slot, err := m.Insert(1, w)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if slot != 0 {
		t.Fatalf("Expected first slot 0, got %d", slot)
	}

	got, err := GetNativePointer[widget](m, 1, slot)
	if err != nil {
		t.Fatalf("GetNativePointer failed: %v", err)
	}
	if got != w {
		t.Fatalf("Expected %p, got %p", w, got)
	}

	back, err := m.WasmPointer(1, w)
	if err != nil {
		t.Fatalf("WasmPointer failed: %v", err)
	}
	if back != slot {
		t.Fatalf("Expected slot %d, got %d", slot, back)
	}
}

func TestTranslationMap_Idempotent(t *testing.T) {
	m := NewTranslationMap()
	w := &widget{}

	first, _ := m.Insert(7, w)
	second, err := m.Insert(7, w)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if first != second {
		t.Fatalf("Expected idempotent slot %d, got %d", first, second)
	}
	if m.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", m.Len())
	}
}

func TestTranslationMap_TaskIsolation(t *testing.T) {
	m := NewTranslationMap()
	w := &widget{}

	slot, _ := m.Insert(1, w)

	for _, other := range []task.Identifier{0, 2, 3, 1 << 31} {
		_, err := m.NativePointer(other, slot)
		if !errors.IsKind(err, errors.KindNativePointerNotFound) {
			t.Errorf("task %d: expected NativePointerNotFound, got %v", other, err)
		}
	}

	// same pointer in another task gets its own slot space
	otherSlot, err := m.Insert(2, w)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if otherSlot != 0 {
		t.Errorf("Expected slot 0 for fresh task, got %d", otherSlot)
	}
	if m.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", m.Len())
	}
}

func TestTranslationMap_Remove(t *testing.T) {
	m := NewTranslationMap()
	a, b := &widget{name: "a"}, &widget{name: "b"}

	slotA, _ := m.Insert(1, a)
	slotB, _ := m.Insert(1, b)

	removed, err := Remove[widget](m, 1, slotA)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed != a {
		t.Fatal("Remove returned wrong object")
	}

	if _, err := m.NativePointer(1, slotA); !errors.IsKind(err, errors.KindNativePointerNotFound) {
		t.Errorf("expected NativePointerNotFound after remove, got %v", err)
	}
	if _, err := m.WasmPointer(1, a); !errors.IsKind(err, errors.KindWasmPointerNotFound) {
		t.Errorf("expected WasmPointerNotFound after remove, got %v", err)
	}

	// double free of a handle is detected
	if _, err := m.Remove(1, slotA); !errors.IsKind(err, errors.KindNativePointerNotFound) {
		t.Errorf("expected NativePointerNotFound on second remove, got %v", err)
	}

	// freed slot is reused as the lowest free one
	c := &widget{name: "c"}
	slotC, _ := m.Insert(1, c)
	if slotC != slotA {
		t.Errorf("Expected reuse of slot %d, got %d", slotA, slotC)
	}
	if got, _ := GetNativePointer[widget](m, 1, slotB); got != b {
		t.Error("unrelated entry disturbed")
	}
}

func TestTranslationMap_TypeMismatch(t *testing.T) {
	m := NewTranslationMap()
	slot, _ := m.Insert(1, &socket{fd: 3})

	if _, err := GetNativePointer[widget](m, 1, slot); !errors.IsKind(err, errors.KindNativePointerNotFound) {
		t.Errorf("expected NativePointerNotFound for wrong type, got %v", err)
	}
	if _, err := Remove[widget](m, 1, slot); err == nil {
		t.Error("expected Remove with wrong type to fail")
	}
	if _, err := GetNativePointer[socket](m, 1, slot); err != nil {
		t.Errorf("entry should survive mistyped remove: %v", err)
	}
}

func TestTranslationMap_InvalidPointer(t *testing.T) {
	m := NewTranslationMap()
	var nilWidget *widget

	tests := []struct {
		name  string
		value any
	}{
		{"nil interface", nil},
		{"nil pointer", nilWidget},
		{"non pointer", widget{}},
		{"integer", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Insert(1, tt.value)
			if !errors.IsKind(err, errors.KindInvalidPointer) {
				t.Errorf("expected InvalidPointer, got %v", err)
			}
		})
	}
}

func TestTranslationMap_Exhaustion(t *testing.T) {
	if testing.Short() {
		t.Skip("fills the whole slot space")
	}

	m := NewTranslationMap()
	objects := make([]widget, SlotCount+1)

	for i := 0; i < SlotCount; i++ {
		slot, err := m.Insert(1, &objects[i])
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		if int(slot) != i {
			t.Fatalf("Insert %d returned slot %d", i, slot)
		}
	}

	_, err := m.Insert(1, &objects[SlotCount])
	if !errors.IsKind(err, errors.KindPointerTableFull) {
		t.Fatalf("expected PointerTableFull, got %v", err)
	}

	// an already registered pointer still resolves when the table is full
	if slot, err := m.Insert(1, &objects[100]); err != nil || slot != 100 {
		t.Errorf("Insert existing = %d, %v", slot, err)
	}

	// other tasks are unaffected
	if _, err := m.Insert(2, &objects[SlotCount]); err != nil {
		t.Errorf("Insert for other task failed: %v", err)
	}

	// one removal makes room again at exactly that slot
	if _, err := m.Remove(1, 4242); err != nil {
		t.Fatal(err)
	}
	slot, err := m.Insert(1, &objects[SlotCount])
	if err != nil || slot != 4242 {
		t.Errorf("Insert after remove = %d, %v, want 4242", slot, err)
	}
}

func TestTranslationMap_EachAndRelease(t *testing.T) {
	m := NewTranslationMap()
	w := &widget{}
	s := &socket{}
	_, _ = m.Insert(1, w)
	_, _ = m.Insert(2, s)

	seen := make(map[task.Identifier]any)
	m.Each(func(id task.Identifier, slot Slot, value any) bool {
		seen[id] = value
		return true
	})
	if seen[1] != w || seen[2] != s {
		t.Errorf("Each saw %v", seen)
	}

	m.Release()
	if m.Len() != 0 {
		t.Errorf("Expected empty map after Release, got %d", m.Len())
	}
	if _, err := m.WasmPointer(1, w); err == nil {
		t.Error("expected reverse mapping cleared")
	}
}

func TestCompositeKey(t *testing.T) {
	if got := CompositeKey(3, 5); got != 3<<32|5 {
		t.Errorf("CompositeKey(3, 5) = %#x", got)
	}
	if CompositeKey(1, 0) == CompositeKey(0, 1) {
		t.Error("keys for different pairs collide")
	}
}
