package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
)

// MaterialState is the observable parameter state of one in-memory material.
type MaterialState struct {
	Name        string
	BaseColor   [3]float64
	Metallic    float64
	Roughness   float64
	NormalScale float64
	Textures    map[Channel]string
}

// MemoryScene is a Port backed by plain data. It is used for dry runs and
// tests; every mutation is counted.
type MemoryScene struct {
	mu        sync.Mutex
	materials []MaterialState
	meshes    []MeshInfo
	variants  map[string]map[string][]*string
	order     []string
	active    string
	ar        bool
	footprint *orb.Bound
	mutations int
}

// NewMemoryScene creates a scene with one default material per name.
func NewMemoryScene(materials ...string) *MemoryScene {
	s := &MemoryScene{variants: make(map[string]map[string][]*string), ar: true}
	for _, name := range materials {
		s.materials = append(s.materials, MaterialState{
			Name:        name,
			BaseColor:   White,
			Metallic:    1,
			Roughness:   1,
			NormalScale: 1,
			Textures:    make(map[Channel]string),
		})
	}
	return s
}

// AddMesh appends a mesh whose primitives use the given materials.
func (s *MemoryScene) AddMesh(name string, materials ...*string) *MemoryScene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes = append(s.meshes, MeshInfo{Name: name, Materials: materials})
	return s
}

// AddVariant declares a variant that reassigns primitive materials of the
// named meshes.
func (s *MemoryScene) AddVariant(name string, meshes map[string][]*string) *MemoryScene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[name] = meshes
	s.order = append(s.order, name)
	return s
}

// SetARCapable sets what ARCapable reports.
func (s *MemoryScene) SetARCapable(ok bool) *MemoryScene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ar = ok
	return s
}

// SetFootprint sets the floor-plane bound.
func (s *MemoryScene) SetFootprint(b orb.Bound) *MemoryScene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.footprint = &b
	return s
}

// State returns a copy of every material's state.
func (s *MemoryScene) State() []MaterialState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MaterialState, len(s.materials))
	for i, m := range s.materials {
		tex := make(map[Channel]string, len(m.Textures))
		for k, v := range m.Textures {
			tex[k] = v
		}
		m.Textures = tex
		out[i] = m
	}
	return out
}

// Mutations returns the number of successful mutating calls.
func (s *MemoryScene) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// ActiveVariant returns the selected variant name.
func (s *MemoryScene) ActiveVariant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *MemoryScene) Materials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.materials))
	for i, m := range s.materials {
		out[i] = m.Name
	}
	return out
}

func (s *MemoryScene) Meshes() []MeshInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	override := s.variants[s.active]
	out := make([]MeshInfo, len(s.meshes))
	for i, m := range s.meshes {
		mats := m.Materials
		if v, ok := override[m.Name]; ok {
			mats = v
		}
		out[i] = MeshInfo{Name: m.Name, Materials: append([]*string(nil), mats...)}
	}
	return out
}

func (s *MemoryScene) Variants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.order...)
}

func (s *MemoryScene) mutate(material int, fn func(m *MaterialState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if material < 0 || material >= len(s.materials) {
		return fmt.Errorf("material %d: %w", material, ErrUnknownMaterial)
	}
	fn(&s.materials[material])
	s.mutations++
	return nil
}

func (s *MemoryScene) SetBaseColor(material int, rgb [3]float64) error {
	return s.mutate(material, func(m *MaterialState) { m.BaseColor = rgb })
}

func (s *MemoryScene) SetMetallic(material int, v float64) error {
	return s.mutate(material, func(m *MaterialState) { m.Metallic = v })
}

func (s *MemoryScene) SetRoughness(material int, v float64) error {
	return s.mutate(material, func(m *MaterialState) { m.Roughness = v })
}

func (s *MemoryScene) BindTexture(material int, ch Channel, tex *Texture, scale *float64) error {
	if tex == nil {
		return errors.New("nil texture")
	}
	return s.mutate(material, func(m *MaterialState) {
		m.Textures[ch] = tex.URL
		if ch == ChannelNormal {
			m.NormalScale = 1
			if scale != nil {
				m.NormalScale = *scale
			}
		}
	})
}

func (s *MemoryScene) ClearTexture(material int, ch Channel) error {
	return s.mutate(material, func(m *MaterialState) { delete(m.Textures, ch) })
}

func (s *MemoryScene) SelectVariant(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		if _, ok := s.variants[name]; !ok {
			return fmt.Errorf("%q: %w", name, ErrUnknownVariant)
		}
	}
	s.active = name
	return nil
}

func (s *MemoryScene) ARCapable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ar
}

// Footprint implements Footprinter.
func (s *MemoryScene) Footprint() (orb.Bound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.footprint == nil {
		return orb.Bound{}, false
	}
	return *s.footprint, true
}

// MemoryLoader serves MemoryScenes by URL. Each Load builds a new scene.
type MemoryLoader struct {
	mu     sync.Mutex
	build  map[string]func() *MemoryScene
	blocks map[string]chan struct{}
	last   map[string]*MemoryScene
	loads  int
}

// NewMemoryLoader creates an empty loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{
		build:  make(map[string]func() *MemoryScene),
		blocks: make(map[string]chan struct{}),
		last:   make(map[string]*MemoryScene),
	}
}

// Add registers a scene factory for url.
func (l *MemoryLoader) Add(url string, build func() *MemoryScene) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.build[url] = build
}

// Block holds loads of url until the returned release func is called.
func (l *MemoryLoader) Block(url string) (release func()) {
	ch := make(chan struct{})
	l.mu.Lock()
	l.blocks[url] = ch
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.blocks, url)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Last returns the scene built by the most recent load of url.
func (l *MemoryLoader) Last(url string) *MemoryScene {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last[url]
}

// Loads returns the number of Load calls.
func (l *MemoryLoader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Load implements Loader.
func (l *MemoryLoader) Load(ctx context.Context, url string) (Port, error) {
	l.mu.Lock()
	l.loads++
	build, ok := l.build[url]
	block := l.blocks[url]
	l.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, &AssetError{URL: url, Err: errors.New("not found")}
	}
	s := build()
	l.mu.Lock()
	l.last[url] = s
	l.mu.Unlock()
	return s, nil
}

// StaticTextures is a TextureSource serving fixed textures by URL.
type StaticTextures struct {
	mu       sync.Mutex
	textures map[string]*Texture
	blocks   map[string]chan struct{}
	fetches  map[string]int
}

// NewStaticTextures serves a 1x1 placeholder texture for each url.
func NewStaticTextures(urls ...string) *StaticTextures {
	t := &StaticTextures{
		textures: make(map[string]*Texture),
		blocks:   make(map[string]chan struct{}),
		fetches:  make(map[string]int),
	}
	for _, u := range urls {
		t.textures[u] = &Texture{URL: u, MimeType: "image/png", Width: 1, Height: 1}
	}
	return t
}

// Block holds fetches of url until release is called.
func (t *StaticTextures) Block(url string) (release func()) {
	ch := make(chan struct{})
	t.mu.Lock()
	t.blocks[url] = ch
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.blocks, url)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// Fetches returns how often url was requested.
func (t *StaticTextures) Fetches(url string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetches[url]
}

// Texture implements TextureSource.
func (t *StaticTextures) Texture(ctx context.Context, url string) (*Texture, error) {
	t.mu.Lock()
	t.fetches[url]++
	tex := t.textures[url]
	block := t.blocks[url]
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if tex == nil {
		return nil, &AssetError{URL: url, Err: errors.New("not found")}
	}
	return tex, nil
}
