package configurator

import "github.com/kwv/reskin/material"

// Option is one allowed preset of a slot.
type Option struct {
	Preset   material.MaterialPreset `json:"preset"`
	Selected bool                    `json:"selected"`
}

// SlotView is a slot with its selectable options.
type SlotView struct {
	Slot    material.SlotSpec `json:"slot"`
	Options []Option          `json:"options"`
}

// Panel presents the allowed presets per slot and writes choices back into
// an Assignment.
type Panel struct {
	assignment *Assignment
	lib        *material.Library
}

// NewPanel creates a panel over a.
func NewPanel(a *Assignment, lib *material.Library) *Panel {
	return &Panel{assignment: a, lib: lib}
}

// View lists the active item's slots. Only allowed presets are offered.
func (p *Panel) View() []SlotView {
	selection := p.assignment.Selection()
	slots := p.assignment.Slots()
	out := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		v := SlotView{Slot: s, Options: make([]Option, 0, len(s.Allowed))}
		for _, id := range s.Allowed {
			preset, ok := p.lib.Get(id)
			if !ok {
				continue
			}
			v.Options = append(v.Options, Option{Preset: preset, Selected: selection[s.ID] == id})
		}
		out = append(out, v)
	}
	return out
}

// Choose writes a selection. Presets outside the slot's allowed set are
// rejected.
func (p *Panel) Choose(slotID, presetID string) bool {
	return p.assignment.Assign(slotID, presetID)
}
