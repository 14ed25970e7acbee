package viewstate

import "sort"

// Set is an unordered collection of unique string values. The zero value is
// an empty, read-only set; use NewSet or Add on a non-nil set to grow it.
type Set map[string]struct{}

// NewSet builds a set from values, dropping empty strings.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v. Empty values are ignored.
func (s Set) Add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

// Remove deletes v.
func (s Set) Remove(v string) {
	delete(s, v)
}

// Sorted returns the values in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy. Cloning a nil set yields an empty set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same values. A nil set equals an
// empty one.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for v := range s {
		if !o.Has(v) {
			return false
		}
	}
	return true
}

// Intersect returns the values present in both sets.
func (s Set) Intersect(o Set) Set {
	out := make(Set)
	for v := range s {
		if o.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}
