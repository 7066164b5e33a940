package layerpack

import (
	"context"
	"image"

	"github.com/aweris/layerpack/internal/decode"
)

// Decoder turns the bytes of a source object into an ordered list of
// images. The order defines the entry indices in the archive.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]image.Image, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, data []byte) ([]image.Image, error)

func (f DecoderFunc) Decode(ctx context.Context, data []byte) ([]image.Image, error) {
	return f(ctx, data)
}

// FrameDecoder decodes PNG, JPEG and GIF sources. Animated GIFs yield one
// image per frame.
var FrameDecoder Decoder = DecoderFunc(decode.Frames)
