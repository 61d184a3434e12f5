package material

import (
	"fmt"
	"sort"
)

// SlotSpec is one editable region of a furniture category.
type SlotSpec struct {
	ID      string   `yaml:"id" json:"id" validate:"required"`
	Label   string   `yaml:"label" json:"label"`
	Targets []string `yaml:"targets" json:"targets" validate:"required,min=1,dive,required"`
	Allowed []string `yaml:"allowed" json:"allowed" validate:"required,min=1,dive,required"`
}

// Allows reports whether presetID is in the slot's allowed set.
func (s SlotSpec) Allows(presetID string) bool {
	for _, id := range s.Allowed {
		if id == presetID {
			return true
		}
	}
	return false
}

// Default returns the first allowed preset id.
func (s SlotSpec) Default() string {
	if len(s.Allowed) == 0 {
		return ""
	}
	return s.Allowed[0]
}

func (s SlotSpec) clone() SlotSpec {
	s.Targets = append([]string(nil), s.Targets...)
	s.Allowed = append([]string(nil), s.Allowed...)
	return s
}

// SlotCatalog maps a furniture category to its ordered slots.
type SlotCatalog struct {
	byCategory map[string][]SlotSpec
}

// NewSlotCatalog validates every slot against lib. Slot ids must be unique
// within a category, targets and allowed sets must be non-empty and every
// allowed id must exist in the library.
func NewSlotCatalog(categories map[string][]SlotSpec, lib *Library) (*SlotCatalog, error) {
	sc := &SlotCatalog{byCategory: make(map[string][]SlotSpec, len(categories))}
	names := make([]string, 0, len(categories))
	for k := range categories {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, category := range names {
		slots := categories[category]
		if category == "" {
			return nil, configErrorf("categories", "empty category name")
		}
		seen := make(map[string]bool, len(slots))
		out := make([]SlotSpec, 0, len(slots))
		for i, slot := range slots {
			entry := fmt.Sprintf("%s/slots[%d]", category, i)
			if slot.ID == "" {
				return nil, configErrorf(entry, "id is required")
			}
			entry = category + "/" + slot.ID
			if seen[slot.ID] {
				return nil, configErrorf(entry, "duplicate slot id")
			}
			seen[slot.ID] = true
			if len(slot.Targets) == 0 {
				return nil, configErrorf(entry, "targets must not be empty")
			}
			for _, t := range slot.Targets {
				if t == "" {
					return nil, configErrorf(entry, "empty target material name")
				}
			}
			if len(slot.Allowed) == 0 {
				return nil, configErrorf(entry, "allowed presets must not be empty")
			}
			for _, id := range slot.Allowed {
				if !lib.Has(id) {
					return nil, configErrorf(entry, "unknown preset %q", id)
				}
			}
			out = append(out, slot.clone())
		}
		sc.byCategory[category] = out
	}
	return sc, nil
}

// SlotsFor returns the ordered slots of category. Unknown categories yield an
// empty, non-nil slice.
func (c *SlotCatalog) SlotsFor(category string) []SlotSpec {
	slots := c.byCategory[category]
	out := make([]SlotSpec, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.clone())
	}
	return out
}

// Slot looks up a single slot of a category.
func (c *SlotCatalog) Slot(category, slotID string) (SlotSpec, bool) {
	for _, s := range c.byCategory[category] {
		if s.ID == slotID {
			return s.clone(), true
		}
	}
	return SlotSpec{}, false
}

// Categories returns the configured category names, sorted.
func (c *SlotCatalog) Categories() []string {
	out := make([]string, 0, len(c.byCategory))
	for k := range c.byCategory {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
