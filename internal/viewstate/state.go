// Package viewstate holds the canonical in-memory description of what a
// paginated table shows: page, page size, sort, free-text search, categorical
// filters, column visibility and row selection. It also owns the
// bidirectional mapping between that state and a query string.
//
// ViewState is plain data. Mutations are applied by the grid controller,
// which keeps the invariants declared by a Schema.
package viewstate

// Sort orders rows by a single column.
type Sort struct {
	Column string
	Desc   bool
}

// Direction returns "asc" or "desc".
func (s Sort) Direction() string {
	if s.Desc {
		return DirectionDesc
	}
	return DirectionAsc
}

const (
	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

// ViewState is the full set of user-controlled parameters of one table.
type ViewState struct {
	PageIndex int
	PageSize  int
	Sort      *Sort // nil means server default ordering
	Search    string

	// Filters maps a dimension id to its selected option values. Dimensions
	// with nothing selected are absent.
	Filters map[string]Set

	// Hidden holds the ids of columns that are not displayed.
	Hidden Set

	// Selection holds the ids of selected rows on the loaded page. It is never
	// part of the query string.
	Selection Set
}

// Clone returns a deep copy.
func (s ViewState) Clone() ViewState {
	out := s
	if s.Sort != nil {
		sort := *s.Sort
		out.Sort = &sort
	}
	out.Filters = make(map[string]Set, len(s.Filters))
	for dim, values := range s.Filters {
		if len(values) > 0 {
			out.Filters[dim] = values.Clone()
		}
	}
	out.Hidden = s.Hidden.Clone()
	out.Selection = s.Selection.Clone()
	return out
}

// Equal compares two states field by field. Nil and empty collections are
// considered equal.
func (s ViewState) Equal(o ViewState) bool {
	if s.PageIndex != o.PageIndex || s.PageSize != o.PageSize || s.Search != o.Search {
		return false
	}
	if (s.Sort == nil) != (o.Sort == nil) {
		return false
	}
	if s.Sort != nil && *s.Sort != *o.Sort {
		return false
	}
	if !filtersEqual(s.Filters, o.Filters) {
		return false
	}
	return s.Hidden.Equal(o.Hidden) && s.Selection.Equal(o.Selection)
}

// Visible reports whether column id is displayed.
func (s ViewState) Visible(id string) bool {
	return !s.Hidden.Has(id)
}

// FilterValues returns the sorted selection of a dimension.
func (s ViewState) FilterValues(dim string) []string {
	return s.Filters[dim].Sorted()
}

func filtersEqual(a, b map[string]Set) bool {
	count := func(m map[string]Set) int {
		n := 0
		for _, v := range m {
			if len(v) > 0 {
				n++
			}
		}
		return n
	}
	if count(a) != count(b) {
		return false
	}
	for dim, values := range a {
		if len(values) == 0 {
			continue
		}
		if !values.Equal(b[dim]) {
			return false
		}
	}
	return true
}
