package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Store is an immutable in-memory catalog.
type Store struct {
	items []Item
	byID  map[string]int
}

// NewStore indexes items by id. Later duplicates are ignored.
func NewStore(items []Item) *Store {
	s := &Store{byID: make(map[string]int, len(items))}
	for _, it := range items {
		if _, dup := s.byID[it.ID]; dup {
			continue
		}
		s.byID[it.ID] = len(s.items)
		s.items = append(s.items, it)
	}
	return s
}

// LoadItems reads a JSON array of items.
func LoadItems(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog file not found: %s", path)
		}
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing catalog JSON: %w", err)
	}
	return items, nil
}

// Len returns the number of items.
func (s *Store) Len() int { return len(s.items) }

// Get returns the item with id.
func (s *Store) Get(id string) (Item, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Item{}, false
	}
	return s.items[i], true
}

// Filter returns matching items in catalog order. The result is never nil.
func (s *Store) Filter(f Filter) []Item {
	q := strings.ToLower(f.Query)
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if f.Supplier != "" && it.Supplier != f.Supplier {
			continue
		}
		if f.Category != "" && it.Category != f.Category {
			continue
		}
		if f.Color != "" && it.Color != f.Color {
			continue
		}
		if q != "" {
			hay := strings.ToLower(it.Name + " " + it.Supplier + " " + it.Category + " " + it.Color)
			if !strings.Contains(hay, q) {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}

// Facets returns sorted distinct suppliers, categories and colors.
func (s *Store) Facets() Facets {
	var sup, cat, col []string
	for _, it := range s.items {
		sup = append(sup, it.Supplier)
		cat = append(cat, it.Category)
		col = append(col, it.Color)
	}
	return Facets{Suppliers: distinct(sup), Categories: distinct(cat), Colors: distinct(col)}
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := []string{}
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
