package layerpack

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aweris/layerpack/internal/archive"
	"github.com/aweris/layerpack/internal/logging"
)

// DefaultArchiveName is the object name used by DestinationKey when none is
// given.
const DefaultArchiveName = "layers.zip"

// ArchiveMethod selects how archive entries are compressed.
type ArchiveMethod = archive.Method

const (
	ArchiveDeflate = archive.MethodDeflate
	ArchiveStore   = archive.MethodStore
	ArchiveZstd    = archive.MethodZstd
)

// Options configures a Pipeline.
type Options struct {
	Concurrency   int
	Encoder       Encoder
	Logger        *slog.Logger
	ArchiveMethod ArchiveMethod
	ArchiveLevel  int
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Concurrency:   runtime.GOMAXPROCS(0),
		Encoder:       PNGEncoder{},
		Logger:        logging.Discard(),
		ArchiveMethod: ArchiveDeflate,
		ArchiveLevel:  archive.DefaultLevel,
	}
}

// WithConcurrency sets the number of images encoded in parallel.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithEncoder replaces the default PNG encoder.
func WithEncoder(enc Encoder) Option {
	return func(o *Options) {
		if enc != nil {
			o.Encoder = enc
		}
	}
}

// WithLogger sets the logger for stage transitions and failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithArchive sets the archive compression method and level. A level of -1
// lets the method choose.
func WithArchive(method ArchiveMethod, level int) Option {
	return func(o *Options) {
		o.ArchiveMethod = method
		o.ArchiveLevel = level
	}
}

// DefaultDataDir is where local backends keep their data.
func DefaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "layerpack")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "layerpack")
	}
	return ".layerpack"
}
