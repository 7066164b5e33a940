package layerpack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/layerpack/internal/archive"
)

const digestPrefix = "sha256:"

// Pipeline converts stored assets into layer archives. A Pipeline holds no
// per-call state and may serve concurrent Process calls.
type Pipeline struct {
	store       ObjectStore
	decoder     Decoder
	encoder     Encoder
	builder     *archive.Builder
	concurrency int
	log         *slog.Logger
}

// Result describes the archive written by Process.
type Result struct {
	Key     string `json:"key"`
	Entries int    `json:"entries"`
	Size    int    `json:"size"`
	Digest  string `json:"digest"`
}

// New creates a pipeline reading from and writing to st.
func New(st ObjectStore, decoder Decoder, opts ...Option) *Pipeline {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Pipeline{
		store:       st,
		decoder:     decoder,
		encoder:     options.Encoder,
		builder:     archive.NewBuilder(archive.WithMethod(options.ArchiveMethod), archive.WithLevel(options.ArchiveLevel)),
		concurrency: options.Concurrency,
		log:         options.Logger,
	}
}

// DestinationKey returns the key an archive for src is stored under by
// default: the archive name nested below the source key.
func DestinationKey(src, name string) string {
	if name == "" {
		name = DefaultArchiveName
	}
	return path.Join(src, name)
}

// Process fetches src, decodes it, encodes every image, archives the results
// in decode order and stores the archive at dst.
//
// Storage failures are returned as the *StorageError the store produced.
// Decode, encode and archive failures are *StageError values. Nothing is
// written to dst unless every earlier stage succeeded.
func (p *Pipeline) Process(ctx context.Context, src, dst string) (*Result, error) {
	log := p.log.With("src", src, "dst", dst)

	fail := func(stage Stage, err error) (*Result, error) {
		log.Error("processing failed", "stage", stage, "error", err)
		return nil, err
	}

	log.Debug("stage", "stage", StageFetching)
	data, err := p.store.Get(ctx, src)
	if err != nil {
		return fail(StageFetching, err)
	}

	log.Debug("stage", "stage", StageDecoding, "bytes", len(data))
	images, err := p.decoder.Decode(ctx, data)
	if err != nil {
		return fail(StageDecoding, &StageError{Stage: StageDecoding, Index: -1, Err: err})
	}

	log.Debug("stage", "stage", StageEncoding, "images", len(images))
	entries, err := p.encodeAll(ctx, images)
	if err != nil {
		return fail(StageEncoding, err)
	}

	log.Debug("stage", "stage", StageArchiving, "entries", len(entries))
	zipped, err := p.builder.Build(entries)
	if err != nil {
		return fail(StageArchiving, &StageError{Stage: StageArchiving, Index: -1, Err: err})
	}

	if err := ctx.Err(); err != nil {
		return fail(StageStoring, err)
	}

	log.Debug("stage", "stage", StageStoring, "bytes", len(zipped))
	if err := p.store.Put(ctx, dst, zipped); err != nil {
		return fail(StageStoring, err)
	}

	sum := sha256.Sum256(zipped)
	res := &Result{
		Key:     dst,
		Entries: len(entries),
		Size:    len(zipped),
		Digest:  digestPrefix + hex.EncodeToString(sum[:]),
	}
	log.Debug("stage", "stage", StageDone, "entries", res.Entries, "size", res.Size)
	return res, nil
}

type encoded struct {
	index int
	data  []byte
}

// encodeAll encodes images in parallel and returns archive entries in input
// order. The first failure cancels the tasks that have not started yet.
func (p *Pipeline) encodeAll(ctx context.Context, images []image.Image) ([]archive.Entry, error) {
	wp := pool.NewWithResults[encoded]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(p.concurrency)

	for i, img := range images {
		wp.Go(func(ctx context.Context) (encoded, error) {
			if err := ctx.Err(); err != nil {
				return encoded{}, err
			}
			data, err := p.encoder.Encode(img)
			if err != nil {
				return encoded{}, &StageError{Stage: StageEncoding, Index: i, Err: err}
			}
			return encoded{index: i, data: data}, nil
		})
	}

	results, err := wp.Wait()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) != len(images) {
		return nil, &StageError{
			Stage: StageEncoding,
			Index: -1,
			Err:   fmt.Errorf("encoded %d of %d images", len(results), len(images)),
		}
	}

	// Workers finish in any order.
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	ext := p.encoder.Ext()
	entries := make([]archive.Entry, len(results))
	for i, r := range results {
		entries[i] = archive.Entry{Name: archive.EntryName(r.index, ext), Data: r.data}
	}
	return entries, nil
}

// IsStage reports whether err is a *StageError for stage.
func IsStage(err error, stage Stage) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stage
}
