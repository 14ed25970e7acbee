package viewstate

import (
	"errors"
	"fmt"
)

// Errors returned by Schema.Validate.
var (
	ErrNoPageSizes       = errors.New("viewstate: at least one page size is required")
	ErrBadDefaultSize    = errors.New("viewstate: default page size is not an allowed page size")
	ErrDuplicateID       = errors.New("viewstate: duplicate id")
	ErrReservedDimension = errors.New("viewstate: dimension id collides with a reserved parameter")
	ErrUnknownParent     = errors.New("viewstate: unknown parent dimension")
	ErrDependencyCycle   = errors.New("viewstate: filter dependency cycle")
)

// Column describes one displayable column.
type Column struct {
	ID       string
	Title    string
	Sortable bool
	// Hidden marks the column as hidden by default.
	Hidden bool
	// VisibleIf is an optional capability rule; see package access.
	VisibleIf string
}

// Dimension describes one categorical filter facet.
type Dimension struct {
	ID    string
	Title string
	// Parent names the dimension this one depends on, if any.
	Parent string
}

// Schema declares the domain of a table's ViewState.
type Schema struct {
	PageSizes       []int
	DefaultPageSize int
	Columns         []Column
	Dimensions      []Dimension
}

// Validate checks the schema for internal consistency.
func (s Schema) Validate() error {
	if len(s.PageSizes) == 0 {
		return ErrNoPageSizes
	}
	if !s.AllowsPageSize(s.DefaultPageSize) {
		return fmt.Errorf("%w: %d", ErrBadDefaultSize, s.DefaultPageSize)
	}

	cols := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.ID == "" || cols[c.ID] {
			return fmt.Errorf("%w: column %q", ErrDuplicateID, c.ID)
		}
		cols[c.ID] = true
	}

	dims := make(map[string]Dimension, len(s.Dimensions))
	for _, d := range s.Dimensions {
		if d.ID == "" {
			return fmt.Errorf("%w: empty dimension id", ErrDuplicateID)
		}
		if _, ok := dims[d.ID]; ok {
			return fmt.Errorf("%w: dimension %q", ErrDuplicateID, d.ID)
		}
		if reservedParams[d.ID] {
			return fmt.Errorf("%w: %q", ErrReservedDimension, d.ID)
		}
		dims[d.ID] = d
	}

	for _, d := range s.Dimensions {
		if d.Parent == "" {
			continue
		}
		if _, ok := dims[d.Parent]; !ok {
			return fmt.Errorf("%w: %q (parent of %q)", ErrUnknownParent, d.Parent, d.ID)
		}
		// Walk up the chain; more steps than dimensions means a loop.
		cur := d
		for steps := 0; cur.Parent != ""; steps++ {
			if steps > len(dims) {
				return fmt.Errorf("%w: through %q", ErrDependencyCycle, d.ID)
			}
			cur = dims[cur.Parent]
		}
	}
	return nil
}

// AllowsPageSize reports whether n is one of the allowed page sizes.
func (s Schema) AllowsPageSize(n int) bool {
	for _, size := range s.PageSizes {
		if size == n {
			return true
		}
	}
	return false
}

// Column returns the column with the given id.
func (s Schema) Column(id string) (Column, bool) {
	for _, c := range s.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Dimension returns the dimension with the given id.
func (s Schema) Dimension(id string) (Dimension, bool) {
	for _, d := range s.Dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return Dimension{}, false
}

// Defaults returns the state a table starts with when nothing is restored.
func (s Schema) Defaults() ViewState {
	hidden := make(Set)
	for _, c := range s.Columns {
		if c.Hidden {
			hidden.Add(c.ID)
		}
	}
	return ViewState{
		PageIndex: 0,
		PageSize:  s.DefaultPageSize,
		Filters:   map[string]Set{},
		Hidden:    hidden,
		Selection: Set{},
	}
}

// Clamp forces every field of st into the schema's domain. Values that cannot
// be repaired fall back to their defaults; unknown dimensions and columns are
// dropped.
func (s Schema) Clamp(st ViewState) ViewState {
	out := st.Clone()
	if out.PageIndex < 0 {
		out.PageIndex = 0
	}
	if !s.AllowsPageSize(out.PageSize) {
		out.PageSize = s.DefaultPageSize
	}
	if out.Sort != nil {
		if c, ok := s.Column(out.Sort.Column); !ok || !c.Sortable {
			out.Sort = nil
		}
	}
	for dim, values := range out.Filters {
		if _, ok := s.Dimension(dim); !ok || len(values) == 0 {
			delete(out.Filters, dim)
			continue
		}
		values.Remove("")
		if len(values) == 0 {
			delete(out.Filters, dim)
		}
	}
	for id := range out.Hidden {
		if _, ok := s.Column(id); !ok {
			out.Hidden.Remove(id)
		}
	}
	return out
}
