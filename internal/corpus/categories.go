package corpus

// Legal categories form a closed set: every category-specific behavior
// (prompt templates, classifier labels) switches over these values with
// an explicit default, so coverage stays statically checkable.
const (
	CategoryTax      = "tax"
	CategoryTraffic  = "traffic"
	CategoryLabor    = "labor"
	CategoryCivil    = "civil"
	CategoryCriminal = "criminal"
)

// KnownCategories returns the closed category set in a stable order.
func KnownCategories() []string {
	return []string{
		CategoryTax,
		CategoryTraffic,
		CategoryLabor,
		CategoryCivil,
		CategoryCriminal,
	}
}

// IsKnownCategory reports whether c is in the closed set. Unknown
// values fall back to default behavior rather than failing.
func IsKnownCategory(c string) bool {
	switch c {
	case CategoryTax, CategoryTraffic, CategoryLabor, CategoryCivil, CategoryCriminal:
		return true
	}
	return false
}
