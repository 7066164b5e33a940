// Package archive packages named byte buffers into a deterministic zip.
//
// Two builds over the same entries with the same options produce identical
// bytes: every header carries the same modification time and method, and
// entries are written in the order supplied.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ModTime is stamped on every entry. It is the zip epoch, the earliest time
// the MS-DOS header fields can represent.
var ModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	// ErrDuplicateEntry is returned when two entries share a name.
	ErrDuplicateEntry = errors.New("duplicate archive entry")

	// ErrUnknownMethod is returned for an unsupported compression method.
	ErrUnknownMethod = errors.New("unknown archive method")
)

// Entry is one named buffer in an archive.
type Entry struct {
	Name string
	Data []byte
}

// EntryName returns the conventional name of the entry at index.
func EntryName(index int, ext string) string {
	return fmt.Sprintf("image_%d.%s", index, ext)
}

// Method selects how entries are compressed.
type Method string

const (
	MethodDeflate Method = "deflate"
	MethodStore   Method = "store"
	MethodZstd    Method = "zstd"
)

// ParseMethod parses a method name. The empty string selects deflate.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", MethodDeflate:
		return MethodDeflate, nil
	case MethodStore:
		return MethodStore, nil
	case MethodZstd:
		return MethodZstd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

func (m Method) zipMethod() (uint16, error) {
	switch m {
	case MethodDeflate:
		return zip.Deflate, nil
	case MethodStore:
		return zip.Store, nil
	case MethodZstd:
		return zstd.ZipMethodWinZip, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, string(m))
	}
}

// DefaultLevel lets each method pick its own default compression level.
const DefaultLevel = -1

// Builder assembles archives. A Builder is immutable after construction
// and safe for concurrent use.
type Builder struct {
	method Method
	level  int
}

// Option configures a Builder.
type Option func(*Builder)

// WithMethod sets the compression method. Default: deflate.
func WithMethod(m Method) Option {
	return func(b *Builder) { b.method = m }
}

// WithLevel sets the compression level. For deflate it is the flate level
// (0-9); for zstd it is the zstd level (1-22). Ignored by store.
func WithLevel(level int) Option {
	return func(b *Builder) { b.level = level }
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{method: MethodDeflate, level: DefaultLevel}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Method returns the configured compression method.
func (b *Builder) Method() Method { return b.method }

// Build writes entries, in order, into a zip archive and returns its bytes.
// Nothing is returned unless the archive was finalized successfully.
func (b *Builder) Build(entries []Entry) ([]byte, error) {
	method, err := b.method.zipMethod()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if err := b.register(w); err != nil {
		return nil, err
	}

	for _, e := range entries {
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Method:   method,
			Modified: ModTime,
		}
		hdr.SetMode(0o644)

		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", e.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) register(w *zip.Writer) error {
	switch b.method {
	case MethodDeflate:
		level := b.level
		if level < flate.HuffmanOnly || level > flate.BestCompression {
			return fmt.Errorf("invalid deflate level %d", level)
		}
		w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	case MethodZstd:
		encOpts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if b.level != DefaultLevel {
			if b.level < 1 || b.level > 22 {
				return fmt.Errorf("invalid zstd level %d", b.level)
			}
			encOpts = append(encOpts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(b.level)))
		}
		w.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(encOpts...))
	}
	return nil
}
