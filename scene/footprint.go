package scene

import "github.com/paulmach/orb"

// Footprint returns the union of POSITION accessor bounds projected onto the
// floor plane (X, Z). Node transforms are not applied.
func (s *GLTFScene) Footprint() (orb.Bound, bool) {
	var (
		bound orb.Bound
		found bool
	)
	for _, m := range s.doc.Meshes {
		for _, p := range m.Primitives {
			idx, ok := p.Attributes["POSITION"]
			if !ok || idx < 0 || idx >= len(s.doc.Accessors) {
				continue
			}
			acc := s.doc.Accessors[idx]
			if len(acc.Min) < 3 || len(acc.Max) < 3 {
				continue
			}
			b := orb.Bound{
				Min: orb.Point{acc.Min[0], acc.Min[2]},
				Max: orb.Point{acc.Max[0], acc.Max[2]},
			}
			if !found {
				bound, found = b, true
				continue
			}
			bound = bound.Union(b)
		}
	}
	return bound, found
}
