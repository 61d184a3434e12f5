package scene

import (
	"encoding/json"
	"fmt"

	"github.com/qmuntal/gltf"
)

const variantsExtension = "KHR_materials_variants"

type variantMapping struct {
	Material int   `json:"material"`
	Variants []int `json:"variants"`
}

// variantSet holds the KHR_materials_variants declarations of a document.
type variantSet struct {
	names []string
	// mappings[mesh][primitive] lists the variant material overrides.
	mappings map[int]map[int][]variantMapping
}

func (v variantSet) index(name string) int {
	for i, n := range v.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (v variantSet) materialFor(mesh, prim, variant int) (int, bool) {
	for _, m := range v.mappings[mesh][prim] {
		for _, vi := range m.Variants {
			if vi == variant {
				return m.Material, true
			}
		}
	}
	return 0, false
}

// parseVariants reads the extension from the document root and from every
// primitive. Unregistered extensions decode as raw JSON, so each value is
// re-marshaled into the local shape.
func parseVariants(doc *gltf.Document) (variantSet, error) {
	vs := variantSet{mappings: make(map[int]map[int][]variantMapping)}

	if raw, ok := doc.Extensions[variantsExtension]; ok {
		var root struct {
			Variants []struct {
				Name string `json:"name"`
			} `json:"variants"`
		}
		if err := remarshal(raw, &root); err != nil {
			return vs, fmt.Errorf("%s: %w", variantsExtension, err)
		}
		for _, v := range root.Variants {
			vs.names = append(vs.names, v.Name)
		}
	}

	for mi, m := range doc.Meshes {
		for pi, p := range m.Primitives {
			raw, ok := p.Extensions[variantsExtension]
			if !ok {
				continue
			}
			var ext struct {
				Mappings []variantMapping `json:"mappings"`
			}
			if err := remarshal(raw, &ext); err != nil {
				return vs, fmt.Errorf("%s on mesh %d primitive %d: %w", variantsExtension, mi, pi, err)
			}
			for _, mapping := range ext.Mappings {
				if mapping.Material < 0 || mapping.Material >= len(doc.Materials) {
					return vs, fmt.Errorf("%s on mesh %d primitive %d: material %d out of range", variantsExtension, mi, pi, mapping.Material)
				}
			}
			if vs.mappings[mi] == nil {
				vs.mappings[mi] = make(map[int][]variantMapping)
			}
			vs.mappings[mi][pi] = ext.Mappings
		}
	}
	return vs, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
