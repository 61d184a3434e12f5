package scene

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

type mapFetcher struct {
	files map[string][]byte
	calls int
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	f.calls++
	data, ok := f.files[url]
	if !ok {
		return nil, "", &AssetError{URL: url, Err: assert.AnError}
	}
	return data, "", nil
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	return img
}

func encodeWith(t *testing.T, img image.Image, enc func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, enc(&buf, img))
	return buf.Bytes()
}

func TestTextureLoader_PNGPassthroughAndCache(t *testing.T) {
	data := encodeWith(t, solidImage(8, 4), func(b *bytes.Buffer, i image.Image) error { return png.Encode(b, i) })
	f := &mapFetcher{files: map[string][]byte{"/maps/a.png": data}}
	l, err := NewTextureLoader(f, 0, 4)
	require.NoError(t, err)

	tex, err := l.Texture(context.Background(), "/maps/a.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", tex.MimeType)
	assert.Equal(t, 8, tex.Width)
	assert.Equal(t, 4, tex.Height)
	assert.Equal(t, data, tex.Data)
	assert.True(t, strings.HasPrefix(tex.DataURI(), "data:image/png;base64,"))

	_, err = l.Texture(context.Background(), "/maps/a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls, "second lookup served from cache")

	l.Purge()
	_, err = l.Texture(context.Background(), "/maps/a.png")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestTextureLoader_ReencodesAndDownscales(t *testing.T) {
	data := encodeWith(t, solidImage(64, 32), func(b *bytes.Buffer, i image.Image) error { return bmp.Encode(b, i) })
	f := &mapFetcher{files: map[string][]byte{"/maps/big.bmp": data}}
	l, err := NewTextureLoader(f, 16, 0)
	require.NoError(t, err)

	tex, err := l.Texture(context.Background(), "/maps/big.bmp")
	require.NoError(t, err)
	assert.Equal(t, "image/png", tex.MimeType)
	assert.Equal(t, 16, tex.Width)
	assert.Equal(t, 8, tex.Height)

	img, err := png.Decode(bytes.NewReader(tex.Data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestTextureLoader_DecodeError(t *testing.T) {
	f := &mapFetcher{files: map[string][]byte{"/maps/bad.png": []byte("not an image")}}
	l, err := NewTextureLoader(f, 0, 0)
	require.NoError(t, err)

	_, err = l.Texture(context.Background(), "/maps/bad.png")
	require.Error(t, err)
	var assetErr *AssetError
	require.ErrorAs(t, err, &assetErr)
	assert.Equal(t, "/maps/bad.png", assetErr.URL)

	_, err = l.Texture(context.Background(), "/maps/missing.png")
	assert.Error(t, err)
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, limit int
		wantW       int
		wantH       int
	}{
		{w: 4096, h: 2048, limit: 2048, wantW: 2048, wantH: 1024},
		{w: 1000, h: 4000, limit: 1000, wantW: 250, wantH: 1000},
		{w: 5000, h: 1, limit: 100, wantW: 100, wantH: 1},
	}
	for _, tt := range tests {
		gotW, gotH := fitWithin(tt.w, tt.h, tt.limit)
		assert.Equal(t, tt.wantW, gotW)
		assert.Equal(t, tt.wantH, gotH)
	}
}
