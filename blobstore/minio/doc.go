// Package minio provides a blobstore.Store implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible storage systems like Ceph,
// SeaweedFS and Garage, without the AWS SDK.
//
// # Basic Usage
//
//	bs, err := minioblob.Dial(minioblob.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	}, "my-bucket", "experiments/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	st, err := store.Open(ctx, "iris.acton", store.WithBlobStore(bs))
package minio
