// Package task is the task collaborator of the bridge: task identities,
// per-task environment variables, spawning of host-side work and sleeping.
//
// A task identity travels through a context.Context:
//
//	ctx = task.WithIdentifier(ctx, id)
//	id, err := manager.GetCurrentTaskIdentifier(ctx)
package task
