package scene

import (
	"context"
	"io"

	"github.com/paulmach/orb"
)

// Channel is a texture slot of a PBR material.
type Channel string

const (
	ChannelBaseColor Channel = "baseColor"
	ChannelNormal    Channel = "normal"
	ChannelOcclusion Channel = "occlusion"
)

// White is the neutral base color factor used under a base color texture.
var White = [3]float64{1, 1, 1}

// MeshInfo lists the material bound to each primitive of a mesh. A nil entry
// is a primitive without a material.
type MeshInfo struct {
	Name      string    `json:"name"`
	Materials []*string `json:"materials"`
}

// Port is the scene-graph surface the Adapter drives. Materials are
// addressed by their index in Materials(); names need not be unique.
// Implementations are not required to be safe for concurrent use; the
// Adapter serializes every call.
type Port interface {
	Materials() []string
	Meshes() []MeshInfo
	Variants() []string

	SetBaseColor(material int, rgb [3]float64) error
	SetMetallic(material int, v float64) error
	SetRoughness(material int, v float64) error

	// BindTexture attaches tex to a channel. scale is only honored for
	// ChannelNormal.
	BindTexture(material int, ch Channel, tex *Texture, scale *float64) error
	ClearTexture(material int, ch Channel) error

	// SelectVariant switches to the named variant. An empty name restores
	// the default material assignment.
	SelectVariant(name string) error

	// ARCapable reports whether the scene itself can be shown in AR.
	ARCapable() bool
}

// Footprinter is implemented by scenes that know their floor-plane extent.
type Footprinter interface {
	Footprint() (orb.Bound, bool)
}

// GLBWriter is implemented by scenes that can serialize their live state.
type GLBWriter interface {
	WriteGLB(w io.Writer) error
}

// Loader resolves a source URL into a fresh Port. Every call must return a
// new, independent scene.
type Loader interface {
	Load(ctx context.Context, url string) (Port, error)
}

// TextureSource fetches and decodes a texture image.
type TextureSource interface {
	Texture(ctx context.Context, url string) (*Texture, error)
}

// Info is the introspection result of a loaded scene.
type Info struct {
	Generation uint64     `json:"generation"`
	URL        string     `json:"url,omitempty"`
	Materials  []string   `json:"materials"`
	Meshes     []MeshInfo `json:"meshes"`
	Variants   []string   `json:"variants"`
	Footprint  *Footprint `json:"footprint,omitempty"`
}

// Footprint is the floor-plane extent of a scene in scene units (X/Z).
type Footprint struct {
	MinX  float64 `json:"minX"`
	MinZ  float64 `json:"minZ"`
	MaxX  float64 `json:"maxX"`
	MaxZ  float64 `json:"maxZ"`
	Width float64 `json:"width"`
	Depth float64 `json:"depth"`
	Area  float64 `json:"area"`
}

func emptyInfo() Info {
	return Info{Materials: []string{}, Meshes: []MeshInfo{}, Variants: []string{}}
}
