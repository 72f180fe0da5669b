// Package blobstore abstracts the backing resource of a managed store.
//
// A managed store persists itself as a single named blob. Store is the
// interface for reading and replacing such blobs; Put must be atomic so a
// crash never leaves a half-written store behind.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, temp file + rename
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 (package blobstore/s3)
//   - minio.Store: MinIO and other S3-compatible services (package blobstore/minio)
//
// Implementations must be safe for concurrent use.
package blobstore
