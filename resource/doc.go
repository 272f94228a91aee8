// Package resource provides the opaque-handle table used to expose host
// objects to guest code.
//
// Guest linear memory and the host heap are disjoint address spaces. A host
// object handed to a guest is never represented by its address; instead it
// is registered in a TranslationMap and the guest receives a 16-bit slot:
//
//	handles := resource.NewTranslationMap()
//
//	// Register a host object for the calling task
//	slot, err := handles.Insert(taskID, widget)
//
//	// Resolve it again on a later call
//	w, err := resource.GetNativePointer[graphics.Object](handles, taskID, slot)
//
//	// Forget it when the guest deletes the object
//	w, err = resource.Remove[graphics.Object](handles, taskID, slot)
//
// # Isolation
//
// Every lookup is keyed by (task, slot). A slot obtained by one task never
// resolves for another task.
//
// # Memory Management
//
// Entries are not garbage collected. The host logic that inserted a handle
// must remove it. A leaked handle is a guest-visible resource leak; the map
// only holds references and never frees what it indexes.
package resource
