package configurator

import (
	"sync"

	"github.com/kwv/reskin/catalog"
	"github.com/kwv/reskin/material"
	"github.com/kwv/reskin/scene"
)

// Assignment maps each slot of the active item to a chosen preset. It is
// reset to the first allowed preset per slot whenever the active item
// changes identity.
type Assignment struct {
	lib     *material.Library
	catalog *material.SlotCatalog

	mu     sync.RWMutex
	item   *catalog.Item
	slots  []material.SlotSpec
	chosen map[string]string
}

// NewAssignment creates an empty assignment.
func NewAssignment(slots *material.SlotCatalog, lib *material.Library) *Assignment {
	return &Assignment{lib: lib, catalog: slots, chosen: make(map[string]string)}
}

// OnActiveItemChanged switches the active item. It reports whether the
// selections were reset; passing the same item id again keeps them.
func (a *Assignment) OnActiveItemChanged(item *catalog.Item) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if item != nil && a.item != nil && a.item.ID == item.ID {
		it := *item
		a.item = &it
		return false
	}
	if item == nil && a.item == nil {
		return false
	}

	a.chosen = make(map[string]string)
	if item == nil {
		a.item = nil
		a.slots = nil
		return true
	}
	it := *item
	a.item = &it
	a.slots = a.catalog.SlotsFor(item.Category)
	for _, s := range a.slots {
		a.chosen[s.ID] = s.Default()
	}
	return true
}

// Assign selects presetID for slotID. A preset outside the slot's allowed
// set, or an unknown slot, is ignored and false is returned.
func (a *Assignment) Assign(slotID, presetID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slots {
		if s.ID != slotID {
			continue
		}
		if !s.Allows(presetID) {
			return false
		}
		a.chosen[slotID] = presetID
		return true
	}
	return false
}

// CurrentEdits returns one descriptor per slot, in slot order.
func (a *Assignment) CurrentEdits() []scene.EditDescriptor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]scene.EditDescriptor, 0, len(a.slots))
	for _, s := range a.slots {
		p, ok := a.lib.Get(a.chosen[s.ID])
		if !ok {
			continue
		}
		out = append(out, Describe(s, p))
	}
	return out
}

// Selection returns a copy of slot id to preset id.
func (a *Assignment) Selection() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]string, len(a.chosen))
	for k, v := range a.chosen {
		out[k] = v
	}
	return out
}

// Item returns a copy of the active item, or nil.
func (a *Assignment) Item() *catalog.Item {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.item == nil {
		return nil
	}
	it := *a.item
	return &it
}

// Slots returns the slots of the active item.
func (a *Assignment) Slots() []material.SlotSpec {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]material.SlotSpec{}, a.slots...)
}
