// Package compression implements the at-rest codecs used by the local store.
//
// Every encoded payload starts with a one-byte tag naming the algorithm that
// produced it, so a store can switch codecs without rewriting old objects.
package compression

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the algorithm of an encoded payload. Values are stored on
// disk; do not renumber.
type Tag uint8

const (
	None Tag = 0
	LZ4  Tag = 1
	Zstd Tag = 2
)

// minCompressSize is the payload size below which compression is skipped.
const minCompressSize = 128

var errCorrupt = errors.New("compression: corrupt payload")

func (t Tag) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// ParseTag parses a codec name.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

// Codec encodes payloads with one algorithm and decodes any tagged payload.
// Safe for concurrent use.
type Codec struct {
	tag     Tag
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec writing payloads with tag.
func NewCodec(tag Tag) (*Codec, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Codec{
		tag:     tag,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Tag returns the algorithm used by Encode.
func (c *Codec) Tag() Tag { return c.tag }

// Encode returns the tagged encoding of data. Data that is small or does not
// shrink is stored uncompressed.
func (c *Codec) Encode(data []byte) []byte {
	if c.tag != None && len(data) >= minCompressSize {
		var payload []byte
		switch c.tag {
		case Zstd:
			payload = c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
		case LZ4:
			payload = encodeLZ4(data)
		}
		if payload != nil && len(payload)+1 < len(data) {
			return append([]byte{byte(c.tag)}, payload...)
		}
	}
	return append([]byte{byte(None)}, data...)
}

// Decode reverses Encode for any tag.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errCorrupt
	}
	payload := data[1:]

	switch Tag(data[0]) {
	case None:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case Zstd:
		out, err := c.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case LZ4:
		return decodeLZ4(payload)
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", errCorrupt, data[0])
	}
}

func (c *Codec) Close() error {
	c.encoder.Close()
	c.decoder.Close()
	return nil
}

// LZ4 payload: [uvarint uncompressed size][lz4 block]

func encodeLZ4(data []byte) []byte {
	out := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	n := binary.PutUvarint(out, uint64(len(data)))

	written, err := lz4.CompressBlock(data, out[n:], nil)
	if err != nil || written == 0 {
		return nil
	}
	return out[:n+written]
}

func decodeLZ4(payload []byte) ([]byte, error) {
	size, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad lz4 header", errCorrupt)
	}

	out := make([]byte, size)
	read, err := lz4.UncompressBlock(payload[n:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if uint64(read) != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return out, nil
}
