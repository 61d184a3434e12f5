package material

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RGB is a linear color with components in [0,1].
type RGB [3]float64

// ParseHexColor parses #RRGGBB or #RRGGBBAA. The alpha byte is ignored.
func ParseHexColor(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	var c RGB
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(h[i*2:i*2+2], 16, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		c[i] = float64(v) / 255
	}
	return c, nil
}

// Hex formats the color as #rrggbb.
func (c RGB) Hex() string {
	var b [3]uint8
	for i, v := range c {
		b[i] = uint8(clamp01(v)*255 + 0.5)
	}
	return fmt.Sprintf("#%02x%02x%02x", b[0], b[1], b[2])
}

// Valid reports whether every component lies in [0,1].
func (c RGB) Valid() bool {
	for _, v := range c {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// UnmarshalYAML accepts either a hex string or a three element sequence.
func (c *RGB) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseHexColor(node.Value)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case yaml.SequenceNode:
		var vals []float64
		if err := node.Decode(&vals); err != nil {
			return err
		}
		if len(vals) != 3 {
			return fmt.Errorf("line %d: color needs 3 components, got %d", node.Line, len(vals))
		}
		copy(c[:], vals)
		return nil
	}
	return fmt.Errorf("line %d: unsupported color value", node.Line)
}

// MarshalJSON emits the color as a plain array.
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64(c))
}

// MaterialPreset is one selectable entry of the material library.
// Presets are immutable after the library is built; callers receive copies.
type MaterialPreset struct {
	ID           string   `yaml:"id" json:"id" validate:"required"`
	Label        string   `yaml:"label" json:"label"`
	BaseColor    *RGB     `yaml:"baseColor,omitempty" json:"baseColor,omitempty"`
	Metallic     *float64 `yaml:"metallic,omitempty" json:"metallic,omitempty" validate:"omitempty,gte=0,lte=1"`
	Roughness    *float64 `yaml:"roughness,omitempty" json:"roughness,omitempty" validate:"omitempty,gte=0,lte=1"`
	BaseColorMap string   `yaml:"baseColorMap,omitempty" json:"baseColorMap,omitempty"`
	NormalMap    string   `yaml:"normalMap,omitempty" json:"normalMap,omitempty"`
	OcclusionMap string   `yaml:"occlusionMap,omitempty" json:"occlusionMap,omitempty"`
	NormalScale  *float64 `yaml:"normalScale,omitempty" json:"normalScale,omitempty"`
}

// HasTexture reports whether the preset references any texture map.
func (p MaterialPreset) HasTexture() bool {
	return p.BaseColorMap != "" || p.NormalMap != "" || p.OcclusionMap != ""
}

// DisplayName returns the label, falling back to the id.
func (p MaterialPreset) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.ID
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (p MaterialPreset) clone() MaterialPreset {
	if p.BaseColor != nil {
		c := *p.BaseColor
		p.BaseColor = &c
	}
	p.Metallic = cloneFloat(p.Metallic)
	p.Roughness = cloneFloat(p.Roughness)
	p.NormalScale = cloneFloat(p.NormalScale)
	return p
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
