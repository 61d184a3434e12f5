package scene

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxTextureSize caps the longest texture edge in pixels.
	DefaultMaxTextureSize = 2048

	// DefaultTextureCacheSize is the number of decoded textures kept in memory.
	DefaultTextureCacheSize = 64
)

// Texture is a decoded, web-ready texture image. Data holds PNG or JPEG bytes.
type Texture struct {
	URL      string
	MimeType string
	Width    int
	Height   int
	Data     []byte
}

// DataURI returns the texture as a base64 data URI.
func (t *Texture) DataURI() string {
	return "data:" + t.MimeType + ";base64," + base64.StdEncoding.EncodeToString(t.Data)
}

// TextureLoader fetches, decodes and normalizes textures. Results are cached
// by URL.
type TextureLoader struct {
	fetcher AssetFetcher
	maxSize int
	cache   *lru.Cache[string, *Texture]
}

// NewTextureLoader creates a loader. maxSize <= 0 disables downscaling.
func NewTextureLoader(fetcher AssetFetcher, maxSize, cacheSize int) (*TextureLoader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultTextureCacheSize
	}
	cache, err := lru.New[string, *Texture](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("texture cache: %w", err)
	}
	return &TextureLoader{fetcher: fetcher, maxSize: maxSize, cache: cache}, nil
}

// Texture returns the decoded texture at url.
func (l *TextureLoader) Texture(ctx context.Context, url string) (*Texture, error) {
	if tex, ok := l.cache.Get(url); ok {
		return tex, nil
	}
	data, _, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	tex, err := l.normalize(url, data)
	if err != nil {
		return nil, &AssetError{URL: url, Err: err}
	}
	l.cache.Add(url, tex)
	return tex, nil
}

// Purge drops every cached texture.
func (l *TextureLoader) Purge() {
	l.cache.Purge()
}

// normalize decodes data and re-encodes it as PNG unless it is already a
// PNG or JPEG within the size limit.
func (l *TextureLoader) normalize(url string, data []byte) (*Texture, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("decode texture: empty image")
	}

	if l.maxSize > 0 && (w > l.maxSize || h > l.maxSize) {
		nw, nh := fitWithin(w, h, l.maxSize)
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		return encodePNG(url, dst)
	}

	switch format {
	case "png":
		return &Texture{URL: url, MimeType: "image/png", Width: w, Height: h, Data: data}, nil
	case "jpeg":
		return &Texture{URL: url, MimeType: "image/jpeg", Width: w, Height: h, Data: data}, nil
	}
	return encodePNG(url, img)
}

func encodePNG(url string, img image.Image) (*Texture, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode texture: %w", err)
	}
	b := img.Bounds()
	return &Texture{URL: url, MimeType: "image/png", Width: b.Dx(), Height: b.Dy(), Data: buf.Bytes()}, nil
}

// fitWithin scales w x h so the longest edge equals limit.
func fitWithin(w, h, limit int) (int, int) {
	if w >= h {
		nh := h * limit / w
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := w * limit / h
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}
