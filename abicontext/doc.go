// Package abicontext lets synchronous host functions discover which task
// is calling them.
//
// A host function registered with the engine receives only raw guest
// arguments. The caller identity is published here for the duration of a
// guest call:
//
//	err := abicontext.Instance().CallWithTaskContext(ctx, tasks, func(ctx context.Context) error {
//		return instance.CallMain(ctx)
//	})
//
// and read back from inside a host function:
//
//	id := abicontext.Instance().GetCurrentTaskIdentifier()
//
// The context is a mutual-exclusion gate: while one task is in context all
// other tasks wait in a FIFO queue, so spans should be kept short.
package abicontext
