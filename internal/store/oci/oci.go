// Package oci stores objects in an OCI registry repository.
//
// Every key becomes one tag in the repository: an image whose single layer
// holds the zstd-compressed object bytes. Upload ordering follows the
// OCI distribution rules (layer, config, manifest), so a tag only resolves once
// the whole object is written.
package oci

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"

	"github.com/aweris/layerpack/internal/store"
)

// KeyLabel is the config label recording the original storage key.
const KeyLabel = "dev.layerpack.key"

// Store implements store.ObjectStore on an OCI repository.
type Store struct {
	repo      name.Repository
	auth      Authenticator
	transport http.RoundTripper
	retries   int
}

// Option configures a Store.
type Option func(*Store)

// WithAuthenticator sets the credential source. Defaults to the Docker
// keychain.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Store) { s.auth = a }
}

// WithRetries sets the number of attempts per registry call. Values below
// one mean a single attempt.
func WithRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Store) { s.transport = rt }
}

// NewStore creates a store for a repository reference such as
// "ghcr.io/acme/layers". insecure allows plain HTTP registries.
func NewStore(repository string, insecure bool, opts ...Option) (*Store, error) {
	var nameOpts []name.Option
	if insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	repo, err := name.NewRepository(repository, nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid repository %q: %w", repository, err)
	}

	s := &Store{repo: repo, auth: KeychainAuthenticator{}, retries: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) String() string { return s.repo.String() }

// TagFor returns the tag holding key. Keys are hashed since tags only allow
// [A-Za-z0-9_.-].
func TagFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "k-" + hex.EncodeToString(sum[:])
}

// Get fetches the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := store.CheckKey(key); err != nil {
		return nil, err
	}

	ref := s.repo.Tag(TagFor(key))
	img, err := retry(ctx, s.retries, func() (v1.Image, error) {
		return remote.Image(ref, s.remoteOptions(ctx)...)
	})
	if err != nil {
		return nil, classify(err)
	}

	data, err := readObject(img, key)
	if err != nil {
		return nil, store.Other(err)
	}
	return data, nil
}

// Put writes data under key, moving the tag if it already exists.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}

	img, err := buildImage(key, data)
	if err != nil {
		return store.Other(fmt.Errorf("build image: %w", err))
	}

	ref := s.repo.Tag(TagFor(key))
	_, err = retry(ctx, s.retries, func() (struct{}, error) {
		return struct{}{}, remote.Write(ref, img, s.remoteOptions(ctx)...)
	})
	if err != nil {
		return store.Other(fmt.Errorf("push image: %w", err))
	}
	return nil
}

func (s *Store) remoteOptions(ctx context.Context) []remote.Option {
	options := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuth(authenticate(s.auth, s.repo)),
		// Retries are owned by the store, see WithRetries.
		remote.WithRetryBackoff(remote.Backoff{Duration: retryBase, Factor: 2, Steps: 1}),
	}
	if s.transport != nil {
		options = append(options, remote.WithTransport(s.transport))
	}
	return options
}

// classify maps a registry failure onto the storage taxonomy. A manifest
// that is not known for an existing repository is a definitive miss; a
// missing repository, auth failures and throttling are Other.
func classify(err error) *store.Error {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return store.Other(err)
	}
	if terr.StatusCode != http.StatusNotFound {
		return store.Other(err)
	}
	if len(terr.Errors) == 0 {
		return store.Missing(err)
	}
	for _, d := range terr.Errors {
		if d.Code != transport.ManifestUnknownErrorCode {
			return store.Other(err)
		}
	}
	return store.Missing(err)
}

func buildImage(key string, data []byte) (v1.Image, error) {
	img := mutate.MediaType(empty.Image, types.OCIManifestSchema1)
	img = mutate.ConfigMediaType(img, types.OCIConfigJSON)

	img, err := mutate.AppendLayers(img, newBlobLayer(data))
	if err != nil {
		return nil, err
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg = cfg.DeepCopy()
	cfg.Config.Labels = map[string]string{KeyLabel: key}

	return mutate.ConfigFile(img, cfg)
}

func readObject(img v1.Image, key string) ([]byte, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	if got := cfg.Config.Labels[KeyLabel]; got != key {
		return nil, fmt.Errorf("tag %s holds key %q, not %q", TagFor(key), got, key)
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}
	if len(layers) != 1 {
		return nil, fmt.Errorf("expected 1 layer, got %d", len(layers))
	}

	rc, err := layers[0].Compressed()
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}
	compressed, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("read layer: %w", err)
	}

	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress layer: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// blobLayer implements v1.Layer with zstd compression for remote transfer
type blobLayer struct {
	compressed   []byte
	uncompressed []byte
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func newBlobLayer(data []byte) *blobLayer {
	return &blobLayer{
		compressed:   zstdEncoder.EncodeAll(data, nil),
		uncompressed: data,
	}
}

func (l *blobLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *blobLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *blobLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}
func (l *blobLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}
func (l *blobLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *blobLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }
