package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("layerpack "), 200)
	small := []byte("tiny")

	for _, tag := range []Tag{None, LZ4, Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			c, err := NewCodec(tag)
			require.NoError(t, err)
			defer c.Close()

			for _, data := range [][]byte{compressible, small, {}} {
				encoded := c.Encode(data)
				decoded, err := c.Decode(encoded)
				require.NoError(t, err)
				assert.Equal(t, data, decoded)
			}

			// Large repetitive input is actually compressed unless disabled.
			encoded := c.Encode(compressible)
			assert.Equal(t, byte(tag), encoded[0])
			if tag != None {
				assert.Less(t, len(encoded), len(compressible))
			}

			// Small input is always stored raw.
			assert.Equal(t, byte(None), c.Encode(small)[0])
		})
	}
}

func TestCodec_DecodeAnyTag(t *testing.T) {
	writer, err := NewCodec(Zstd)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := NewCodec(LZ4)
	require.NoError(t, err)
	defer reader.Close()

	data := bytes.Repeat([]byte{1, 2, 3, 4}, 100)
	decoded, err := reader.Decode(writer.Encode(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestCodec_Corrupt(t *testing.T) {
	c, err := NewCodec(None)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decode(nil)
	assert.Error(t, err)

	_, err = c.Decode([]byte{9, 1, 2})
	assert.Error(t, err)

	_, err = c.Decode([]byte{byte(LZ4), 0xff})
	assert.Error(t, err)
}

func TestParseTag(t *testing.T) {
	for name, want := range map[string]Tag{"": None, "none": None, "lz4": LZ4, "zstd": Zstd} {
		got, err := ParseTag(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseTag("brotli")
	assert.Error(t, err)
}
