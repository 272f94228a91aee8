// Package vfs is the file system collaborator of the bridge. Each task has
// its own table of open files and directories addressed by FileIdentifier.
//
// The backing store is any afero.Fs: the host directory in production,
// an in-memory file system in tests.
//
//	files := vfs.NewOS("/srv/guest", logger)
//	_ = files.InsertStream(taskID, vfs.StandardOut, nil, os.Stdout)
//	id, err := files.Open(ctx, taskID, "/data.txt", vfs.FlagReadWrite|vfs.FlagCreate)
package vfs
