package grid

import (
	"sort"

	"github.com/imgajeed76/gridsync/internal/bulk"
	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// Snapshot is everything a renderer needs for one repaint.
type Snapshot[R any] struct {
	State   viewstate.ViewState
	Query   string
	Result  fetch.Result[R]
	Columns []viewstate.Column
	Dialog  bulk.Dialog

	// PageCount is derived from the displayed result.
	PageCount int
	// OutOfRange is set when the displayed page lies beyond the last page,
	// e.g. after rows were deleted. The page index is left alone.
	OutOfRange bool
	// Unavailable lists dimensions whose options could not be loaded.
	Unavailable []string

	// Seq increases with every notification. Listeners can be invoked from
	// several goroutines and should ignore snapshots older than the last.
	Seq uint64
}

// State returns a copy of the current view state.
func (c *Controller[R]) State() viewstate.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Query returns the canonical query string of the current state.
func (c *Controller[R]) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Result returns the current fetch result.
func (c *Controller[R]) Result() fetch.Result[R] {
	c.mu.Lock()
	orch := c.orch
	c.mu.Unlock()
	if orch == nil {
		return fetch.Result[R]{}
	}
	return orch.Result()
}

// Schema returns the table schema.
func (c *Controller[R]) Schema() viewstate.Schema {
	return c.cfg.Schema
}

// Codec returns the codec bound to the table schema.
func (c *Controller[R]) Codec() *viewstate.Codec {
	return c.codec
}

// Options returns the options of dimension that are valid under the current
// filters: for a dependent dimension, only children of selected parents.
func (c *Controller[R]) Options(dimension string) []cascade.Option {
	return c.resolver.Valid(dimension, c.State().Filters)
}

// Parent returns the dimension that narrows dimension, or "".
func (c *Controller[R]) Parent(dimension string) string {
	return c.resolver.Parent(dimension)
}

// Dependents returns the dimensions narrowed by dimension, in resolve order.
func (c *Controller[R]) Dependents(dimension string) []string {
	return c.resolver.Dependents(dimension)
}

// Unavailable lists dimensions whose options failed to load, sorted.
func (c *Controller[R]) Unavailable() []string {
	failed := c.resolver.Unavailable()
	out := make([]string, 0, len(failed))
	for dim := range failed {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}

// Columns returns every column the session may see, hidden or not.
func (c *Controller[R]) Columns() []viewstate.Column {
	var out []viewstate.Column
	for _, col := range c.cfg.Schema.Columns {
		if c.cfg.Gate.ColumnAllowed(col.ID) {
			out = append(out, col)
		}
	}
	return out
}

// VisibleColumns returns the columns to render, in schema order.
func (c *Controller[R]) VisibleColumns() []viewstate.Column {
	state := c.State()
	var out []viewstate.Column
	for _, col := range c.Columns() {
		if state.Visible(col.ID) {
			out = append(out, col)
		}
	}
	return out
}

// RowID returns the identity of row.
func (c *Controller[R]) RowID(row R) string {
	return c.cfg.RowID(row)
}

// Snapshot returns a consistent view of the controller.
func (c *Controller[R]) Snapshot() Snapshot[R] {
	c.mu.Lock()
	state := c.state.Clone()
	query := c.query
	fetchKey := c.fetchKey
	orch := c.orch
	c.mu.Unlock()

	var res fetch.Result[R]
	if orch != nil {
		res = orch.Result()
	}
	snap := Snapshot[R]{
		State:       state,
		Query:       query,
		Result:      res,
		Dialog:      c.bulk.Dialog(),
		PageCount:   res.PageCount(),
		Unavailable: c.Unavailable(),
	}
	for _, col := range c.Columns() {
		if state.Visible(col.ID) {
			snap.Columns = append(snap.Columns, col)
		}
	}
	snap.OutOfRange = res.Status == fetch.StatusSuccess &&
		res.Shown.Key() == fetchKey &&
		state.PageIndex > 0 &&
		state.PageIndex >= snap.PageCount
	return snap
}

// Subscribe registers fn for every change of state, result or dialog and
// returns a function that removes it. fn runs without any controller lock
// held and may call back into the controller.
func (c *Controller[R]) Subscribe(fn func(Snapshot[R])) func() {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Controller[R]) notify() {
	c.lmu.Lock()
	if len(c.listeners) == 0 {
		c.lmu.Unlock()
		return
	}
	fns := make([]func(Snapshot[R]), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()

	snap := c.Snapshot()
	c.mu.Lock()
	c.seq++
	snap.Seq = c.seq
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
