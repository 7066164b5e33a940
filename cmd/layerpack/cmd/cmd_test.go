package cmd

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/layerpack"
	"github.com/aweris/layerpack/internal/archive"
	"github.com/aweris/layerpack/internal/compression"
	"github.com/aweris/layerpack/internal/store"
)

func TestProcessAndInspect(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()

	root := t.TempDir()
	viper.Set("backend", "local")
	viper.Set("local.root", root)
	viper.Set("local.codec", "zstd")
	viper.Set("log.level", "error")

	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, image.NewGray(image.Rect(0, 0, 3, 3))))

	st, err := store.NewLocalStore(root, compression.Zstd)
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), "icon.png", src.Bytes()))

	processCmd.SetContext(context.Background())
	require.NoError(t, runProcess(processCmd, []string{"icon.png"}))

	data, err := st.Get(context.Background(), layerpack.DestinationKey("icon.png", ""))
	require.NoError(t, err)
	entries, err := archive.Read(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "image_0.png", entries[0].Name)

	inspectCmd.SetContext(context.Background())
	require.NoError(t, runInspect(inspectCmd, []string{"icon.png/layers.zip"}))

	err = runInspect(inspectCmd, []string{"missing.zip"})
	assert.True(t, layerpack.IsMissing(err))
}

func TestPipelineOptions_Invalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()

	viper.Set("archive.method", "rar")
	_, err := pipelineOptions(nil)
	assert.ErrorIs(t, err, archive.ErrUnknownMethod)

	viper.Set("archive.method", "zstd")
	viper.Set("png.compression", "ultra")
	_, err = pipelineOptions(nil)
	assert.Error(t, err)
}
