package material

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// textureTint is the tile color for presets that only carry a texture map.
var textureTint = RGB{0.78, 0.72, 0.62}

// SwatchSheet renders the allowed presets of a category, one row per slot.
// Sizes are in millimeters.
type SwatchSheet struct {
	Slots      []SlotSpec
	Library    *Library
	Tile       float64
	Gap        float64
	Header     float64
	Resolution canvas.Resolution
}

// NewSwatchSheet creates a sheet with default layout.
func NewSwatchSheet(slots []SlotSpec, lib *Library) *SwatchSheet {
	return &SwatchSheet{
		Slots:      slots,
		Library:    lib,
		Tile:       40,
		Gap:        8,
		Header:     10,
		Resolution: canvas.DPMM(4),
	}
}

type swatchRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// tile is a positioned preset, origin at its lower left corner.
type tile struct {
	preset MaterialPreset
	x, y   float64
}

// row is a slot header position plus its tiles.
type row struct {
	slot  SlotSpec
	x, y  float64
	tiles []tile
}

// Size returns the sheet width and height.
func (s *SwatchSheet) Size() (float64, float64) {
	cols := 1
	for _, slot := range s.Slots {
		if len(slot.Allowed) > cols {
			cols = len(slot.Allowed)
		}
	}
	rows := len(s.Slots)
	if rows == 0 {
		rows = 1
	}
	w := s.Gap + float64(cols)*(s.Tile+s.Gap)
	h := s.Gap + float64(rows)*(s.Header+s.Tile+s.Gap)
	return w, h
}

func (s *SwatchSheet) layout() []row {
	_, h := s.Size()
	out := make([]row, 0, len(s.Slots))
	top := h - s.Gap
	for _, slot := range s.Slots {
		r := row{slot: slot, x: s.Gap, y: top - s.Header/2}
		for i, id := range slot.Allowed {
			p, ok := s.Library.Get(id)
			if !ok {
				continue
			}
			r.tiles = append(r.tiles, tile{
				preset: p,
				x:      s.Gap + float64(i)*(s.Tile+s.Gap),
				y:      top - s.Header - s.Tile,
			})
		}
		out = append(out, r)
		top -= s.Header + s.Tile + s.Gap
	}
	return out
}

// RenderSVG writes the sheet as SVG.
func (s *SwatchSheet) RenderSVG(w io.Writer) error {
	width, height := s.Size()
	out := svg.New(w, width, height, nil)
	s.render(out, width, height)
	return out.Close()
}

// RenderPNG writes the sheet as PNG with slot and preset labels.
func (s *SwatchSheet) RenderPNG(w io.Writer) error {
	width, height := s.Size()
	rast := rasterizer.New(width, height, s.Resolution, canvas.DefaultColorSpace)
	s.render(rast, width, height)

	dpmm := s.Resolution.DPMM()
	toPixel := func(x, y float64) (int, int) {
		return int(x * dpmm), int((height - y) * dpmm)
	}
	for _, r := range s.layout() {
		px, py := toPixel(r.x, r.y)
		drawLabel(rast, px, py+4, r.slot.Label, color.Black)
		for _, t := range r.tiles {
			lx, ly := toPixel(t.x, t.y)
			drawLabel(rast, lx+4, ly-6, t.preset.DisplayName(), labelColor(tileColor(t.preset)))
		}
	}
	return png.Encode(w, rast)
}

func (s *SwatchSheet) render(r swatchRenderer, width, height float64) {
	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	r.RenderPath(canvas.Rectangle(width, height), bg, canvas.Identity)

	for _, row := range s.layout() {
		for _, t := range row.tiles {
			s.renderTile(r, t)
		}
	}
}

func (s *SwatchSheet) renderTile(r swatchRenderer, t tile) {
	fill := canvas.DefaultStyle
	fill.Fill = canvas.Paint{Color: toRGBA(tileColor(t.preset))}
	fill.Stroke = canvas.Paint{Color: canvas.Gray}
	fill.StrokeWidth = 0.5
	r.RenderPath(canvas.Rectangle(s.Tile, s.Tile), fill, canvas.Identity.Translate(t.x, t.y))

	if t.preset.BaseColorMap != "" {
		hatch := canvas.DefaultStyle
		hatch.Fill = canvas.Paint{Color: canvas.Transparent}
		hatch.Stroke = canvas.Paint{Color: canvas.RGBA(0, 0, 0, 0.25)}
		hatch.StrokeWidth = 0.6
		p := &canvas.Path{}
		for off := s.Tile / 5; off < 2*s.Tile; off += s.Tile / 5 {
			x0, y0 := 0.0, off
			x1, y1 := off, 0.0
			if off > s.Tile {
				x0, y0 = off-s.Tile, s.Tile
				x1, y1 = s.Tile, off-s.Tile
			}
			p.MoveTo(x0, y0)
			p.LineTo(x1, y1)
		}
		r.RenderPath(p, hatch, canvas.Identity.Translate(t.x, t.y))
	}

	if m := t.preset.Metallic; m != nil && *m > 0 {
		gloss := canvas.DefaultStyle
		gloss.Fill = canvas.Paint{Color: canvas.RGBA(1, 1, 1, 0.2+0.6*(*m))}
		radius := s.Tile / 8
		r.RenderPath(canvas.Circle(radius), gloss, canvas.Identity.Translate(t.x+s.Tile-2*radius, t.y+s.Tile-2*radius))
	}
}

// tileColor picks the displayed color of a preset.
func tileColor(p MaterialPreset) RGB {
	if p.BaseColor != nil {
		return *p.BaseColor
	}
	return textureTint
}

func toRGBA(c RGB) color.RGBA {
	return color.RGBA{
		R: uint8(clamp01(c[0])*255 + 0.5),
		G: uint8(clamp01(c[1])*255 + 0.5),
		B: uint8(clamp01(c[2])*255 + 0.5),
		A: 255,
	}
}

// labelColor returns black or white depending on the luminance of bg.
func labelColor(bg RGB) color.Color {
	lum := 0.2126*bg[0] + 0.7152*bg[1] + 0.0722*bg[2]
	if lum < 0.45 {
		return color.White
	}
	return color.Black
}

func drawLabel(img *rasterizer.Rasterizer, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
