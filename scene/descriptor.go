package scene

// EditDescriptor is one instruction to repaint the named materials of the
// live scene. A descriptor with no targets is never applied.
type EditDescriptor struct {
	Targets      []string    `json:"targets"`
	BaseColor    *[3]float64 `json:"baseColor,omitempty"`
	Metallic     *float64    `json:"metallic,omitempty"`
	Roughness    *float64    `json:"roughness,omitempty"`
	BaseColorMap string      `json:"baseColorMap,omitempty"`
	NormalMap    string      `json:"normalMap,omitempty"`
	OcclusionMap string      `json:"occlusionMap,omitempty"`
	NormalScale  *float64    `json:"normalScale,omitempty"`
}

// Empty reports whether the descriptor names no usable target.
func (d EditDescriptor) Empty() bool {
	for _, t := range d.Targets {
		if t != "" {
			return false
		}
	}
	return true
}

// textureMaps returns the channels this descriptor carries a map for.
func (d EditDescriptor) textureMaps() map[Channel]string {
	maps := make(map[Channel]string, 3)
	if d.BaseColorMap != "" {
		maps[ChannelBaseColor] = d.BaseColorMap
	}
	if d.NormalMap != "" {
		maps[ChannelNormal] = d.NormalMap
	}
	if d.OcclusionMap != "" {
		maps[ChannelOcclusion] = d.OcclusionMap
	}
	return maps
}
