// Package cascade keeps dependent filter dimensions consistent with their
// parents. A dependent dimension's valid options are the options whose parent
// key is selected in the parent dimension; an empty parent selection means
// "unrestricted", not "nothing".
package cascade

import (
	"fmt"
	"sort"
	"sync"

	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// Option is one selectable value of a dimension.
type Option struct {
	ID       string `json:"id"`
	Label    string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Resolver narrows dependent selections. It is safe for concurrent use;
// catalogs are replaced wholesale, never merged.
type Resolver struct {
	parents map[string]string // dimension -> parent ("" for roots)
	order   []string          // parents before children

	mu          sync.RWMutex
	catalogs    map[string][]Option
	unavailable map[string]error
}

// New builds a resolver for the given dimensions. The dependency graph must
// be single-parent and acyclic.
func New(dims []viewstate.Dimension) (*Resolver, error) {
	r := &Resolver{
		parents:     make(map[string]string, len(dims)),
		catalogs:    make(map[string][]Option),
		unavailable: make(map[string]error),
	}
	for _, d := range dims {
		r.parents[d.ID] = d.Parent
	}
	for _, d := range dims {
		if d.Parent != "" {
			if _, ok := r.parents[d.Parent]; !ok {
				return nil, fmt.Errorf("%w: %q (parent of %q)", viewstate.ErrUnknownParent, d.Parent, d.ID)
			}
		}
	}

	order, err := topoOrder(dims, r.parents)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// topoOrder returns dimension ids ordered by depth, keeping declaration order
// within one depth.
func topoOrder(dims []viewstate.Dimension, parents map[string]string) ([]string, error) {
	depth := make(map[string]int, len(dims))
	for _, d := range dims {
		n := 0
		for cur := parents[d.ID]; cur != ""; cur = parents[cur] {
			n++
			if n > len(dims) {
				return nil, fmt.Errorf("%w: through %q", viewstate.ErrDependencyCycle, d.ID)
			}
		}
		depth[d.ID] = n
	}

	order := make([]string, len(dims))
	for i, d := range dims {
		order[i] = d.ID
	}
	sort.SliceStable(order, func(i, j int) bool { return depth[order[i]] < depth[order[j]] })
	return order, nil
}

// Parent returns the parent of dim, or "".
func (r *Resolver) Parent(dim string) string {
	return r.parents[dim]
}

// Dependents returns the dimensions whose parent is dim.
func (r *Resolver) Dependents(dim string) []string {
	var out []string
	for _, id := range r.order {
		if r.parents[id] == dim {
			out = append(out, id)
		}
	}
	return out
}

// SetCatalog replaces the option list of dim and clears any unavailable mark.
func (r *Resolver) SetCatalog(dim string, options []Option) {
	cp := make([]Option, len(options))
	copy(cp, options)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogs[dim] = cp
	delete(r.unavailable, dim)
}

// MarkUnavailable records that dim's options could not be loaded. An
// unavailable dimension is never narrowed.
func (r *Resolver) MarkUnavailable(dim string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.catalogs, dim)
	r.unavailable[dim] = err
}

// Unavailable returns the dimensions whose options failed to load.
func (r *Resolver) Unavailable() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error, len(r.unavailable))
	for k, v := range r.unavailable {
		out[k] = v
	}
	return out
}

// Catalog returns the full option list of dim.
func (r *Resolver) Catalog(dim string) ([]Option, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opts, ok := r.catalogs[dim]
	return opts, ok
}

// Valid returns the options of dim that are selectable under filters.
func (r *Resolver) Valid(dim string, filters map[string]viewstate.Set) []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.valid(dim, filters)
}

func (r *Resolver) valid(dim string, filters map[string]viewstate.Set) []Option {
	catalog := r.catalogs[dim]
	parent := r.parents[dim]
	if parent == "" || len(filters[parent]) == 0 {
		return catalog
	}
	selected := filters[parent]
	var out []Option
	for _, o := range catalog {
		if selected.Has(o.ParentID) {
			out = append(out, o)
		}
	}
	return out
}

// Resolve returns filters with every dependent selection intersected with its
// valid option set. Dimensions are visited parents first, so one pass reaches
// the fixpoint of a single-parent chain. The input is not modified.
func (r *Resolver) Resolve(filters map[string]viewstate.Set) (map[string]viewstate.Set, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]viewstate.Set, len(filters))
	for dim, values := range filters {
		if len(values) > 0 {
			out[dim] = values.Clone()
		}
	}

	changed := false
	for _, dim := range r.order {
		if r.parents[dim] == "" {
			continue
		}
		current := out[dim]
		if len(current) == 0 {
			continue
		}
		if _, ok := r.catalogs[dim]; !ok {
			// Unknown or unavailable options: nothing to validate against.
			continue
		}

		valid := make(viewstate.Set)
		for _, o := range r.valid(dim, out) {
			valid.Add(o.ID)
		}
		next := current.Intersect(valid)
		if len(next) == len(current) {
			continue
		}
		changed = true
		if len(next) == 0 {
			delete(out, dim)
		} else {
			out[dim] = next
		}
	}
	return out, changed
}
