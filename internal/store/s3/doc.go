// Package s3 provides an Amazon S3 implementation of store.ObjectStore.
//
// # Usage
//
//	client, err := s3.NewClient(ctx, "ap-southeast-1")
//	store := s3.NewStore(client, "my-bucket", "layers/")
//
// # Features
//
//   - NoSuchKey classified as ObjectMissing, everything else as Other
//   - CRC32C checksums on single-part uploads
//   - Multipart uploads for large archives
package s3
