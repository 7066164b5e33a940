package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/aweris/layerpack/internal/store"
)

// DefaultRegion is used when the AWS default chain resolves no region.
const DefaultRegion = "ap-southeast-1"

// Client is the subset of the S3 API the store needs.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	manager.UploadAPIClient
}

// Store implements store.ObjectStore on an S3 bucket.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	uploader *manager.Uploader
	cfg      UploadConfig
}

// UploadConfig tunes how objects are written.
type UploadConfig struct {
	// MultipartThreshold is the object size from which a multipart upload is
	// used instead of a single PutObject. Default: 16MB.
	MultipartThreshold int64

	// PartSize is the part size for multipart uploads. Default: 8MB.
	PartSize int64

	// Concurrency is the number of concurrent part uploads. Default: 5.
	Concurrency int
}

// DefaultUploadConfig returns the default upload settings.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		MultipartThreshold: 16 * 1024 * 1024,
		PartSize:           8 * 1024 * 1024,
		Concurrency:        5,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithUploadConfig overrides the upload settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(s *Store) { s.cfg = cfg }
}

// NewStore creates a store for bucket. rootPrefix is prepended to all keys.
func NewStore(client Client, bucket, rootPrefix string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		cfg:    DefaultUploadConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.uploader = manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = s.cfg.PartSize
		u.Concurrency = s.cfg.Concurrency
	})
	return s
}

// NewClient builds an S3 client from the default AWS configuration chain,
// falling back to region (or DefaultRegion) when the chain yields none.
func NewClient(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = region
		if cfg.Region == "" {
			cfg.Region = DefaultRegion
		}
	}
	return s3.NewFromConfig(cfg), nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Get downloads the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.CheckKey(key); err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, store.Other(fmt.Errorf("read object body: %w", err))
	}
	return data, nil
}

// Put uploads data at key. Small objects go through a single PutObject with
// a CRC32C checksum; large ones use a multipart upload.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}

	var err error
	if int64(len(data)) >= s.cfg.MultipartThreshold {
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:            aws.String(s.bucket),
			Key:               aws.String(s.key(key)),
			Body:              bytes.NewReader(data),
			ChecksumAlgorithm: types.ChecksumAlgorithmCrc32c,
		})
	} else {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:         aws.String(s.bucket),
			Key:            aws.String(s.key(key)),
			Body:           bytes.NewReader(data),
			ContentLength:  aws.Int64(int64(len(data))),
			ChecksumCRC32C: aws.String(computeCRC32C(data)),
		})
	}
	if err != nil {
		return store.Other(err)
	}
	return nil
}

// classify maps a GetObject failure onto the storage taxonomy. Only NoSuchKey
// is a definitive miss; NoSuchBucket, AccessDenied and the rest are Other.
func classify(err error) *store.Error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return store.Missing(err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return store.Missing(err)
	}
	return store.Other(err)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// computeCRC32C returns the CRC32C checksum in the base64 form S3 expects.
func computeCRC32C(data []byte) string {
	sum := crc32.Checksum(data, castagnoli)
	b := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	return base64.StdEncoding.EncodeToString(b)
}
