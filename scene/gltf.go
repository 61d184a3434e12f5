package scene

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/qmuntal/gltf"
)

// GLTFLoader loads binary or embedded glTF documents through an AssetFetcher.
type GLTFLoader struct {
	fetcher AssetFetcher
}

// NewGLTFLoader creates a loader.
func NewGLTFLoader(fetcher AssetFetcher) *GLTFLoader {
	return &GLTFLoader{fetcher: fetcher}
}

// Load implements Loader.
func (l *GLTFLoader) Load(ctx context.Context, url string) (Port, error) {
	data, _, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, &AssetError{URL: url, Err: fmt.Errorf("decode glTF: %w", err)}
	}
	s, err := NewGLTFScene(doc)
	if err != nil {
		return nil, &AssetError{URL: url, Err: err}
	}
	return s, nil
}

// GLTFScene is a Port over a decoded glTF document. Bound textures are
// embedded as data URIs so the document stays self-contained.
type GLTFScene struct {
	doc      *gltf.Document
	defaults [][]*int
	variants variantSet
	textures map[string]int
	active   string
}

// NewGLTFScene wraps doc. The current primitive materials become the
// default variant.
func NewGLTFScene(doc *gltf.Document) (*GLTFScene, error) {
	vs, err := parseVariants(doc)
	if err != nil {
		return nil, err
	}
	s := &GLTFScene{doc: doc, variants: vs, textures: make(map[string]int)}
	for _, m := range doc.Meshes {
		prims := make([]*int, len(m.Primitives))
		for i, p := range m.Primitives {
			if p.Material != nil {
				idx := *p.Material
				prims[i] = &idx
			}
		}
		s.defaults = append(s.defaults, prims)
	}
	return s, nil
}

// Document returns the underlying document.
func (s *GLTFScene) Document() *gltf.Document { return s.doc }

func (s *GLTFScene) Materials() []string {
	out := make([]string, len(s.doc.Materials))
	for i, m := range s.doc.Materials {
		out[i] = m.Name
	}
	return out
}

func (s *GLTFScene) Meshes() []MeshInfo {
	out := make([]MeshInfo, 0, len(s.doc.Meshes))
	for _, m := range s.doc.Meshes {
		info := MeshInfo{Name: m.Name, Materials: make([]*string, len(m.Primitives))}
		for i, p := range m.Primitives {
			if p.Material != nil && *p.Material >= 0 && *p.Material < len(s.doc.Materials) {
				name := s.doc.Materials[*p.Material].Name
				info.Materials[i] = &name
			}
		}
		out = append(out, info)
	}
	return out
}

func (s *GLTFScene) Variants() []string {
	return append([]string{}, s.variants.names...)
}

func (s *GLTFScene) material(i int) (*gltf.Material, error) {
	if i < 0 || i >= len(s.doc.Materials) {
		return nil, fmt.Errorf("material %d: %w", i, ErrUnknownMaterial)
	}
	return s.doc.Materials[i], nil
}

func (s *GLTFScene) pbr(i int) (*gltf.PBRMetallicRoughness, error) {
	m, err := s.material(i)
	if err != nil {
		return nil, err
	}
	if m.PBRMetallicRoughness == nil {
		m.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{}
	}
	return m.PBRMetallicRoughness, nil
}

// SetBaseColor keeps the existing alpha.
func (s *GLTFScene) SetBaseColor(i int, rgb [3]float64) error {
	pbr, err := s.pbr(i)
	if err != nil {
		return err
	}
	alpha := 1.0
	if pbr.BaseColorFactor != nil {
		alpha = pbr.BaseColorFactor[3]
	}
	pbr.BaseColorFactor = &[4]float64{rgb[0], rgb[1], rgb[2], alpha}
	return nil
}

func (s *GLTFScene) SetMetallic(i int, v float64) error {
	pbr, err := s.pbr(i)
	if err != nil {
		return err
	}
	pbr.MetallicFactor = &v
	return nil
}

func (s *GLTFScene) SetRoughness(i int, v float64) error {
	pbr, err := s.pbr(i)
	if err != nil {
		return err
	}
	pbr.RoughnessFactor = &v
	return nil
}

func (s *GLTFScene) BindTexture(i int, ch Channel, tex *Texture, scale *float64) error {
	if tex == nil {
		return fmt.Errorf("bind %s: nil texture", ch)
	}
	m, err := s.material(i)
	if err != nil {
		return err
	}
	idx := s.textureIndex(tex)
	switch ch {
	case ChannelBaseColor:
		pbr, _ := s.pbr(i)
		pbr.BaseColorTexture = &gltf.TextureInfo{Index: idx}
	case ChannelNormal:
		nt := &gltf.NormalTexture{Index: &idx}
		if scale != nil {
			v := *scale
			nt.Scale = &v
		}
		m.NormalTexture = nt
	case ChannelOcclusion:
		m.OcclusionTexture = &gltf.OcclusionTexture{Index: &idx}
	default:
		return fmt.Errorf("bind: unknown channel %q", ch)
	}
	return nil
}

func (s *GLTFScene) ClearTexture(i int, ch Channel) error {
	m, err := s.material(i)
	if err != nil {
		return err
	}
	switch ch {
	case ChannelBaseColor:
		if m.PBRMetallicRoughness != nil {
			m.PBRMetallicRoughness.BaseColorTexture = nil
		}
	case ChannelNormal:
		m.NormalTexture = nil
	case ChannelOcclusion:
		m.OcclusionTexture = nil
	default:
		return fmt.Errorf("clear: unknown channel %q", ch)
	}
	return nil
}

// textureIndex returns the texture slot for tex, appending an image and a
// texture on first use of its URL.
func (s *GLTFScene) textureIndex(tex *Texture) int {
	if idx, ok := s.textures[tex.URL]; ok {
		return idx
	}
	src := len(s.doc.Images)
	s.doc.Images = append(s.doc.Images, &gltf.Image{
		Name:     path.Base(tex.URL),
		MimeType: tex.MimeType,
		URI:      tex.DataURI(),
	})
	s.doc.Textures = append(s.doc.Textures, &gltf.Texture{Source: &src})
	idx := len(s.doc.Textures) - 1
	s.textures[tex.URL] = idx
	return idx
}

func (s *GLTFScene) SelectVariant(name string) error {
	variant := -1
	if name != "" {
		variant = s.variants.index(name)
		if variant < 0 {
			return fmt.Errorf("%q: %w", name, ErrUnknownVariant)
		}
	}
	for mi, m := range s.doc.Meshes {
		for pi, p := range m.Primitives {
			p.Material = s.defaultMaterial(mi, pi)
			if variant < 0 {
				continue
			}
			if mat, ok := s.variants.materialFor(mi, pi, variant); ok {
				p.Material = &mat
			}
		}
	}
	s.active = name
	return nil
}

func (s *GLTFScene) defaultMaterial(mesh, prim int) *int {
	if mesh >= len(s.defaults) || prim >= len(s.defaults[mesh]) || s.defaults[mesh][prim] == nil {
		return nil
	}
	v := *s.defaults[mesh][prim]
	return &v
}

// ARCapable reports whether there is any geometry to place.
func (s *GLTFScene) ARCapable() bool {
	for _, m := range s.doc.Meshes {
		if len(m.Primitives) > 0 {
			return true
		}
	}
	return false
}

// WriteGLB encodes the live document as binary glTF.
func (s *GLTFScene) WriteGLB(w io.Writer) error {
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(s.doc); err != nil {
		return fmt.Errorf("encode glb: %w", err)
	}
	return nil
}
