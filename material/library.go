package material

import "fmt"

// Library is the immutable set of material presets, keyed by id.
type Library struct {
	order   []string
	presets map[string]MaterialPreset
}

// NewLibrary builds a library. A duplicate or empty id is a ConfigError.
func NewLibrary(presets []MaterialPreset) (*Library, error) {
	lib := &Library{
		order:   make([]string, 0, len(presets)),
		presets: make(map[string]MaterialPreset, len(presets)),
	}
	for i, p := range presets {
		if p.ID == "" {
			return nil, configErrorf(fmt.Sprintf("presets[%d]", i), "id is required")
		}
		if _, dup := lib.presets[p.ID]; dup {
			return nil, configErrorf("preset "+p.ID, "duplicate id")
		}
		if p.BaseColor != nil && !p.BaseColor.Valid() {
			return nil, configErrorf("preset "+p.ID, "baseColor components must be in [0,1]")
		}
		lib.presets[p.ID] = p.clone()
		lib.order = append(lib.order, p.ID)
	}
	return lib, nil
}

// Get returns a copy of the preset with the given id.
func (l *Library) Get(id string) (MaterialPreset, bool) {
	p, ok := l.presets[id]
	if !ok {
		return MaterialPreset{}, false
	}
	return p.clone(), true
}

// Has reports whether id is a known preset.
func (l *Library) Has(id string) bool {
	_, ok := l.presets[id]
	return ok
}

// IDs returns preset ids in declaration order.
func (l *Library) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// All returns copies of every preset in declaration order.
func (l *Library) All() []MaterialPreset {
	out := make([]MaterialPreset, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.presets[id].clone())
	}
	return out
}

// Len returns the number of presets.
func (l *Library) Len() int { return len(l.order) }
