// Package backend opens the configured ObjectStore for a bucket.
package backend

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dgraph-io/badger/v4"
	"github.com/minio/minio-go/v7"

	"github.com/aweris/layerpack/internal/compression"
	"github.com/aweris/layerpack/internal/store"
	badgerstore "github.com/aweris/layerpack/internal/store/badger"
	miniostore "github.com/aweris/layerpack/internal/store/minio"
	ocistore "github.com/aweris/layerpack/internal/store/oci"
	s3store "github.com/aweris/layerpack/internal/store/s3"
)

// Backend names.
const (
	Memory = "memory"
	Local  = "local"
	S3     = "s3"
	MinIO  = "minio"
	Badger = "badger"
	OCI    = "oci"
)

var ErrUnknownBackend = errors.New("unknown backend")

// Config selects and configures a backend. Field tags match the viper keys.
type Config struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	Region  string `mapstructure:"region"`

	Local struct {
		Root  string `mapstructure:"root"`
		Codec string `mapstructure:"codec"`
	} `mapstructure:"local"`

	MinIO struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Secure    bool   `mapstructure:"secure"`
	} `mapstructure:"minio"`

	Badger struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"badger"`

	OCI struct {
		Repository string `mapstructure:"repository"`
		Insecure   bool   `mapstructure:"insecure"`
		Retries    int    `mapstructure:"retries"`
	} `mapstructure:"oci"`

	Cache struct {
		MaxBytes int64 `mapstructure:"max_bytes"`
	} `mapstructure:"cache"`
}

// Provider opens a store per bucket on demand. Buckets come from requests,
// so per-bucket stores are cheap views and are not retained; only the
// clients, codec, memory store and object cache behind them are shared.
type Provider struct {
	cfg Config

	mu      sync.Mutex
	closers []func() error

	memory      *store.MemoryStore
	codec       *compression.Codec
	cache       *store.ObjectCache
	s3Client    *s3.Client
	minioClient *minio.Client
	badgerDB    *badger.DB
}

// NewProvider validates cfg and prepares a provider. Clients are created
// lazily on first use.
func NewProvider(cfg Config) (*Provider, error) {
	switch cfg.Backend {
	case Memory, Local, S3, MinIO, Badger:
	case OCI:
		if cfg.OCI.Repository == "" {
			return nil, fmt.Errorf("oci backend requires oci.repository")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if _, err := compression.ParseTag(cfg.Local.Codec); err != nil {
		return nil, err
	}
	return &Provider{cfg: cfg}, nil
}

// Backend returns the configured backend name.
func (p *Provider) Backend() string { return p.cfg.Backend }

// DefaultBucket returns the configured bucket.
func (p *Provider) DefaultBucket() string { return p.cfg.Bucket }

// Store returns the store for bucket. An empty bucket selects the
// configured default.
func (p *Provider) Store(ctx context.Context, bucket string) (store.ObjectStore, error) {
	if bucket == "" {
		bucket = p.cfg.Bucket
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.open(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if p.cfg.Cache.MaxBytes > 0 {
		if p.cache == nil {
			cache, err := store.NewObjectCache(p.cfg.Cache.MaxBytes)
			if err != nil {
				return nil, err
			}
			p.cache = cache
			p.closers = append(p.closers, cache.Close)
		}
		st = p.cache.Wrap(st, bucket)
	}
	return st, nil
}

func (p *Provider) open(ctx context.Context, bucket string) (store.ObjectStore, error) {
	switch p.cfg.Backend {
	case Memory:
		if p.memory == nil {
			p.memory = store.NewMemoryStore()
		}
		return bucketStore{inner: p.memory, bucket: bucket}, nil

	case Local:
		root := p.cfg.Local.Root
		if bucket != "" {
			if err := store.CheckRelativeKey(bucket); err != nil {
				return nil, fmt.Errorf("bucket %q: %w", bucket, err)
			}
			root = filepath.Join(root, filepath.FromSlash(bucket))
		}
		if p.codec == nil {
			tag, _ := compression.ParseTag(p.cfg.Local.Codec)
			codec, err := compression.NewCodec(tag)
			if err != nil {
				return nil, err
			}
			p.codec = codec
			p.closers = append(p.closers, codec.Close)
		}
		return store.NewLocalStoreWithCodec(root, p.codec), nil

	case S3:
		if bucket == "" {
			return nil, fmt.Errorf("s3 backend requires a bucket")
		}
		if p.s3Client == nil {
			client, err := s3store.NewClient(ctx, p.cfg.Region)
			if err != nil {
				return nil, err
			}
			p.s3Client = client
		}
		return s3store.NewStore(p.s3Client, bucket, p.cfg.Prefix), nil

	case MinIO:
		if bucket == "" {
			return nil, fmt.Errorf("minio backend requires a bucket")
		}
		if p.minioClient == nil {
			client, err := miniostore.NewClient(p.cfg.MinIO.Endpoint, p.cfg.MinIO.AccessKey, p.cfg.MinIO.SecretKey, p.cfg.MinIO.Secure)
			if err != nil {
				return nil, err
			}
			p.minioClient = client
		}
		return miniostore.NewStore(p.minioClient, bucket, p.cfg.Prefix), nil

	case Badger:
		if p.badgerDB == nil {
			st, err := badgerstore.Open(p.cfg.Badger.Path, "")
			if err != nil {
				return nil, err
			}
			p.badgerDB = st.DB()
			p.closers = append(p.closers, st.Close)
		}
		return badgerstore.New(p.badgerDB, path.Join(bucket, p.cfg.Prefix)), nil

	case OCI:
		repo := p.cfg.OCI.Repository
		if bucket != "" {
			repo = path.Join(repo, bucket)
		}
		return ocistore.NewStore(repo, p.cfg.OCI.Insecure, ocistore.WithRetries(p.cfg.OCI.Retries))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, p.cfg.Backend)
}

// bucketStore scopes a shared store to one bucket by key prefix.
type bucketStore struct {
	inner  store.ObjectStore
	bucket string
}

func (b bucketStore) key(key string) string {
	if b.bucket == "" {
		return key
	}
	return b.bucket + "/" + key
}

func (b bucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.CheckKey(key); err != nil {
		return nil, err
	}
	return b.inner.Get(ctx, b.key(key))
}

func (b bucketStore) Put(ctx context.Context, key string, data []byte) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	return b.inner.Put(ctx, b.key(key), data)
}

// Close releases every store and client the provider opened.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	p.memory = nil
	p.codec = nil
	p.cache = nil
	p.badgerDB = nil
	return errors.Join(errs...)
}
