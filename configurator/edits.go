package configurator

import (
	"github.com/kwv/reskin/material"
	"github.com/kwv/reskin/scene"
)

// Describe derives the edit descriptor for a slot painted with preset.
func Describe(slot material.SlotSpec, preset material.MaterialPreset) scene.EditDescriptor {
	d := scene.EditDescriptor{
		Targets:      append([]string(nil), slot.Targets...),
		Metallic:     preset.Metallic,
		Roughness:    preset.Roughness,
		BaseColorMap: preset.BaseColorMap,
		NormalMap:    preset.NormalMap,
		OcclusionMap: preset.OcclusionMap,
		NormalScale:  preset.NormalScale,
	}
	if preset.BaseColor != nil {
		c := [3]float64(*preset.BaseColor)
		d.BaseColor = &c
	}
	return d
}
