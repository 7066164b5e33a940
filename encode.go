package layerpack

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
)

// Encoder serializes one image. Implementations are shared by all workers
// and must be safe for concurrent use.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	// Ext is the file extension used for archive entry names.
	Ext() string
}

// PNGEncoder encodes images as PNG.
type PNGEncoder struct {
	Level png.CompressionLevel
}

var (
	pngBuffers  = &bufferPool{}
	errNilImage = errors.New("png: nil image")
)

func (e PNGEncoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errNilImage
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: e.Level, BufferPool: pngBuffers}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (PNGEncoder) Ext() string { return "png" }

// ParsePNGCompression maps a configuration name to a PNG compression level.
func ParsePNGCompression(name string) (png.CompressionLevel, error) {
	switch name {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression %q", name)
	}
}

// bufferPool shares png encoder scratch buffers across workers.
type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *bufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}
