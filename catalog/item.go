package catalog

// Item is a furniture record from the catalog. Only Category drives slot
// selection; the rest is presented to the operator as-is.
type Item struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Supplier   string   `json:"supplier"`
	Category   string   `json:"category"`
	Color      string   `json:"color"`
	Dimensions string   `json:"dimensions,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	GlbURL     string   `json:"glbUrl,omitempty"`
}

// HasModel reports whether the item has a 3D asset.
func (i Item) HasModel() bool { return i.GlbURL != "" }

// Filter selects items. Empty fields match everything; Supplier, Category
// and Color compare exactly, Query is a case-insensitive substring over
// name, supplier, category and color.
type Filter struct {
	Supplier string
	Category string
	Color    string
	Query    string
}

// Facets are the distinct non-empty values offered as filter choices.
type Facets struct {
	Suppliers  []string `json:"suppliers"`
	Categories []string `json:"categories"`
	Colors     []string `json:"colors"`
}
