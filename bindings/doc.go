// Package bindings holds the native symbol collections guests call
// through the "host" import module.
//
// Every symbol returns an i32 status: 0 on success, otherwise the kind
// code of the failure (see errors.Kind). Results are written through
// out-pointers. File identifiers are the per-task identifiers of package
// vfs; widgets and connections are 16-bit handles scoped to the calling
// task.
//
// # File system
//
//	xila_file_system_open(path *, len ~, flags i, id_out *) i
//	xila_file_system_read(id i, buf *, len ~, read_out *) i
//	xila_file_system_write(id i, buf *, len ~, written_out *) i
//	xila_file_system_set_position(id i, offset I, whence i, position_out *u64) i
//	xila_file_system_close(id i) i
//	xila_file_system_get_metadata(path *, len ~, metadata_out *) i
//	xila_file_system_open_directory(path *, len ~, id_out *) i
//	xila_file_system_read_directory(id i, name *, len ~, entry_out *) i
//	xila_file_system_close_directory(id i) i
//	xila_file_system_create_directory(path *, len ~) i
//	xila_file_system_remove(path *, len ~) i
//	xila_file_system_rename(from *, len ~, to *, len ~) i
//
// Metadata is {kind u32, permissions u32, size u64, modified_unix_nanos i64}
// and a directory entry is {name_length u32, kind u32, size u64}; both
// must be 8-byte aligned.
//
// # Task
//
//	xila_task_get_identifier(id_out *) i
//	xila_task_sleep(milliseconds I) i
//	xila_task_get_environment_variable(name *, len ~, value *, len ~, value_length_out *) i
//	xila_task_set_environment_variable(name *, len ~, value *, len ~) i
//
// # Graphics
//
//	xila_graphics_get_screen(handle_out *) i
//	xila_graphics_create_object(kind i, parent i, handle_out *) i
//	xila_graphics_delete_object(handle i) i
//	xila_graphics_set_text(handle i, text *, len ~) i
//	xila_graphics_get_child_count(handle i, count_out *) i
//
// # Network
//
//	xila_network_resolve(host *, len ~, addresses *, len ~, count_out *) i
//	xila_network_connect(host *, len ~, port i, handle_out *) i
//	xila_network_send(handle i, buf *, len ~, sent_out *) i
//	xila_network_receive(handle i, buf *, len ~, received_out *) i
//	xila_network_close(handle i) i
package bindings
