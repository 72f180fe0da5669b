// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: open, remove, rename and directory operations
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that fails writes, syncs or closes on demand
//
// The local blob store and the snapshot writer take a FileSystem so tests
// can simulate a process dying halfway through an append.
//
// Operations take no context.Context: local file operations are not
// interruptible at the syscall level.
package fs
