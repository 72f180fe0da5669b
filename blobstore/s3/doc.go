// Package s3 provides an S3 implementation of the blobstore.Store interface.
//
// # Usage
//
//	client, err := s3.LoadClient(ctx, s3.ClientConfig{Region: "us-east-1"})
//	bs := s3.NewStore(client, "my-bucket", "experiments/")
//	st, err := store.Open(ctx, "iris.acton",
//	    store.WithBlobStore(bs),
//	    store.WithLocker(s3.NewDynamoLock(ddb, "acton-locks", "my-bucket/experiments/iris.acton")))
//
// # Features
//
//   - Multipart uploads for large stores via the s3 transfer manager
//   - Configurable prefix for multi-tenant isolation
//   - DynamoDB lease lock for exclusive ownership across hosts
package s3
