// Package grid composes the view-state engine into one controller per table
// instance: every user action goes through the controller, which narrows
// dependent filters, writes the canonical query string once and issues at
// most one fetch. Renderers subscribe to it and never touch the parts.
package grid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imgajeed76/gridsync/internal/access"
	"github.com/imgajeed76/gridsync/internal/bulk"
	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/logging"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

var (
	ErrNotMounted         = errors.New("grid: controller not mounted")
	ErrMounted            = errors.New("grid: controller already mounted")
	ErrUnknownColumn      = errors.New("grid: unknown column")
	ErrUnknownDimension   = errors.New("grid: unknown filter dimension")
	ErrNotSortable        = errors.New("grid: column is not sortable")
	ErrInvalidPageSize    = errors.New("grid: page size not allowed")
	ErrUnknownRow         = errors.New("grid: row is not on the loaded page")
	ErrDeleteUnsupported  = errors.New("grid: table has no delete endpoint")
	errMissingFetcher     = errors.New("grid: fetcher is required")
	errMissingRowIdentity = errors.New("grid: row id function is required")
)

// ActionDelete is the action name checked against the access gate.
const ActionDelete = "delete"

// optionsConcurrency bounds parallel option catalog loads.
const optionsConcurrency = 4

// Config wires a controller. Fetcher and RowID are required.
type Config[R any] struct {
	Schema  viewstate.Schema
	Fetcher fetch.Fetcher[R]
	RowID   func(R) string

	Options  OptionsSource
	Mutator  Mutator
	URL      URLWriter
	Gate     *access.Gate
	Notifier bulk.Notifier
	Logger   *zap.Logger
}

// Controller owns the ViewState of one table instance.
type Controller[R any] struct {
	cfg      Config[R]
	codec    *viewstate.Codec
	resolver *cascade.Resolver
	bulk     *bulk.Coordinator
	logger   *zap.Logger

	mu       sync.Mutex
	mounted  bool
	state    viewstate.ViewState
	query    string
	fetchKey string
	orch     *fetch.Orchestrator[R]
	stopOrch func()
	cancel   context.CancelFunc
	seq      uint64

	lmu       sync.Mutex
	listeners map[int]func(Snapshot[R])
	nextID    int
}

// New validates cfg and returns an unmounted controller.
func New[R any](cfg Config[R]) (*Controller[R], error) {
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	if cfg.RowID == nil {
		return nil, errMissingRowIdentity
	}
	cfg.Logger = logging.OrNop(cfg.Logger)

	codec, err := viewstate.NewCodec(cfg.Schema)
	if err != nil {
		return nil, err
	}
	resolver, err := cascade.New(cfg.Schema.Dimensions)
	if err != nil {
		return nil, err
	}

	c := &Controller[R]{
		cfg:       cfg,
		codec:     codec,
		resolver:  resolver,
		logger:    cfg.Logger,
		state:     cfg.Schema.Defaults(),
		listeners: make(map[int]func(Snapshot[R])),
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = bulk.NotifierFunc(func(err error) {
			c.logger.Warn("bulk mutation failed", zap.Error(err))
		})
	}
	c.bulk = bulk.New(bulk.Config{
		Notifier:  notifier,
		OnSuccess: c.afterBulk,
		OnChange:  func(bulk.Dialog) { c.notify() },
		Logger:    cfg.Logger,
	})
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Lifecycle
// ═══════════════════════════════════════════════════════════════════════════

// Mount decodes rawQuery, loads every option catalog, narrows the decoded
// filters, writes the canonical query and issues the first fetch.
func (c *Controller[R]) Mount(ctx context.Context, rawQuery string) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return ErrMounted
	}
	c.mu.Unlock()

	if err := c.loadOptions(ctx); err != nil {
		return err
	}

	fctx, cancel := context.WithCancel(ctx)
	orch := fetch.New(fctx, c.cfg.Fetcher, fetch.WithLogger(c.logger))
	stop := orch.Subscribe(func(r fetch.Result[R]) {
		// Loading transitions are issued by the controller itself, which
		// notifies once the whole mutation is done.
		if r.Status != fetch.StatusLoading {
			c.notify()
		}
	})

	state := c.cfg.Schema.Clamp(c.codec.Decode(rawQuery))
	state.Filters, _ = c.resolver.Resolve(state.Filters)

	c.mu.Lock()
	c.mounted = true
	c.orch = orch
	c.stopOrch = stop
	c.cancel = cancel
	c.state = state
	c.query = c.codec.Encode(state)
	c.writeURLLocked(c.query)
	req := c.codec.Request(state)
	c.fetchKey = req.Key()
	_, err := orch.Load(req)
	c.mu.Unlock()

	c.logger.Debug("table mounted",
		zap.String("query", c.query),
		zap.Strings("unavailable", c.Unavailable()))
	c.notify()
	return err
}

// Unmount stops in-flight fetches and discards the state. Pending bulk
// dialogs are left as they are.
func (c *Controller[R]) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	orch, stop, cancel := c.orch, c.stopOrch, c.cancel
	c.mu.Unlock()

	stop()
	orch.Close()
	cancel()
	c.logger.Debug("table unmounted")
}

// loadOptions fetches every dimension's catalog concurrently. A failed
// dimension is marked unavailable; only cancellation aborts the load.
func (c *Controller[R]) loadOptions(ctx context.Context) error {
	if c.cfg.Options == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(optionsConcurrency)
	for _, d := range c.cfg.Schema.Dimensions {
		dim := d.ID
		g.Go(func() error {
			opts, err := c.cfg.Options.Options(gctx, dim)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("filter options unavailable",
					zap.String("dimension", dim),
					zap.Error(err))
				c.resolver.MarkUnavailable(dim, err)
				return nil
			}
			c.resolver.SetCatalog(dim, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load filter options: %w", err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Mutation pipeline
// ═══════════════════════════════════════════════════════════════════════════

// apply runs mutate on a copy of the state, repairs the result, and commits
// it: one URL replace when the query changed, one fetch when the fetch key
// changed. A mutation that changes nothing has no effect at all.
func (c *Controller[R]) apply(mutate func(s *viewstate.ViewState) error) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}

	next := c.state.Clone()
	if err := mutate(&next); err != nil {
		c.mu.Unlock()
		return err
	}
	next = c.cfg.Schema.Clamp(next)
	next.Filters, _ = c.resolver.Resolve(next.Filters)

	req := c.codec.Request(next)
	key := req.Key()
	if key != c.fetchKey {
		next.Selection = viewstate.Set{}
	}
	if next.Equal(c.state) {
		c.mu.Unlock()
		return nil
	}
	c.state = next

	if query := c.codec.Encode(next); query != c.query {
		c.query = query
		c.writeURLLocked(query)
	}
	var err error
	if key != c.fetchKey {
		c.fetchKey = key
		_, err = c.orch.Load(req)
	}
	c.mu.Unlock()

	c.notify()
	return err
}

func (c *Controller[R]) writeURLLocked(query string) {
	if c.cfg.URL == nil {
		return
	}
	if err := c.cfg.URL.Replace(query); err != nil {
		c.logger.Warn("query write failed", zap.String("query", query), zap.Error(err))
	}
}

// SetPage moves to page index i (0-based). The index is not checked against
// the page count; see Snapshot.OutOfRange.
func (c *Controller[R]) SetPage(i int) error {
	return c.apply(func(s *viewstate.ViewState) error {
		s.PageIndex = max(i, 0)
		return nil
	})
}

// NextPage advances one page unless the last page is already shown.
func (c *Controller[R]) NextPage() error {
	res := c.Result()
	return c.apply(func(s *viewstate.ViewState) error {
		if pages := res.PageCount(); res.Status != fetch.StatusIdle && pages > 0 && s.PageIndex+1 >= pages {
			return nil
		}
		s.PageIndex++
		return nil
	})
}

// PrevPage goes back one page, stopping at the first.
func (c *Controller[R]) PrevPage() error {
	return c.apply(func(s *viewstate.ViewState) error {
		if s.PageIndex > 0 {
			s.PageIndex--
		}
		return nil
	})
}

// SetPageSize changes the page size and returns to the first page.
func (c *Controller[R]) SetPageSize(n int) error {
	if !c.cfg.Schema.AllowsPageSize(n) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, n)
	}
	return c.apply(func(s *viewstate.ViewState) error {
		if s.PageSize != n {
			s.PageSize = n
			s.PageIndex = 0
		}
		return nil
	})
}

// StepPageSize moves to the next (delta > 0) or previous allowed page size.
func (c *Controller[R]) StepPageSize(delta int) error {
	sizes := append([]int(nil), c.cfg.Schema.PageSizes...)
	sort.Ints(sizes)
	cur := c.State().PageSize
	idx := sort.SearchInts(sizes, cur)
	idx = min(max(idx+delta, 0), len(sizes)-1)
	return c.SetPageSize(sizes[idx])
}

// SetSort sorts by column. An empty column clears the sort.
func (c *Controller[R]) SetSort(column string, desc bool) error {
	if column != "" {
		if err := c.checkSortable(column); err != nil {
			return err
		}
	}
	return c.apply(func(s *viewstate.ViewState) error {
		if column == "" {
			s.Sort = nil
			return nil
		}
		s.Sort = &viewstate.Sort{Column: column, Desc: desc}
		return nil
	})
}

// CycleSort steps column through ascending, descending and unsorted.
func (c *Controller[R]) CycleSort(column string) error {
	if err := c.checkSortable(column); err != nil {
		return err
	}
	return c.apply(func(s *viewstate.ViewState) error {
		switch {
		case s.Sort == nil || s.Sort.Column != column:
			s.Sort = &viewstate.Sort{Column: column}
		case !s.Sort.Desc:
			s.Sort = &viewstate.Sort{Column: column, Desc: true}
		default:
			s.Sort = nil
		}
		return nil
	})
}

func (c *Controller[R]) checkSortable(column string) error {
	col, ok := c.cfg.Schema.Column(column)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	if !col.Sortable {
		return fmt.Errorf("%w: %q", ErrNotSortable, column)
	}
	return nil
}

// SetSearch replaces the free-text search. The page index is kept.
func (c *Controller[R]) SetSearch(text string) error {
	return c.apply(func(s *viewstate.ViewState) error {
		s.Search = text
		return nil
	})
}

// SetFilter replaces the selection of one dimension. Dependent dimensions
// are narrowed in the same step.
func (c *Controller[R]) SetFilter(dimension string, values ...string) error {
	if _, ok := c.cfg.Schema.Dimension(dimension); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}
	return c.apply(func(s *viewstate.ViewState) error {
		if set := viewstate.NewSet(values...); len(set) > 0 {
			s.Filters[dimension] = set
		} else {
			delete(s.Filters, dimension)
		}
		return nil
	})
}

// ToggleFilter adds or removes one value of a dimension.
func (c *Controller[R]) ToggleFilter(dimension, value string) error {
	if _, ok := c.cfg.Schema.Dimension(dimension); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}
	return c.apply(func(s *viewstate.ViewState) error {
		set := s.Filters[dimension].Clone()
		if set.Has(value) {
			set.Remove(value)
		} else {
			set.Add(value)
		}
		if len(set) > 0 {
			s.Filters[dimension] = set
		} else {
			delete(s.Filters, dimension)
		}
		return nil
	})
}

// ClearFilters drops every filter selection.
func (c *Controller[R]) ClearFilters() error {
	return c.apply(func(s *viewstate.ViewState) error {
		s.Filters = map[string]viewstate.Set{}
		return nil
	})
}

// SetColumnVisible shows or hides a column. Visibility never triggers a
// fetch.
func (c *Controller[R]) SetColumnVisible(column string, visible bool) error {
	if _, ok := c.cfg.Schema.Column(column); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	return c.apply(func(s *viewstate.ViewState) error {
		if visible {
			s.Hidden.Remove(column)
		} else {
			s.Hidden.Add(column)
		}
		return nil
	})
}

// ToggleColumn flips a column's visibility.
func (c *Controller[R]) ToggleColumn(column string) error {
	return c.SetColumnVisible(column, !c.State().Visible(column))
}

// ═══════════════════════════════════════════════════════════════════════════
// Selection
// ═══════════════════════════════════════════════════════════════════════════

func (c *Controller[R]) pageIDs() []string {
	rows := c.Result().Rows
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, c.cfg.RowID(r))
	}
	return ids
}

// ToggleRow selects or deselects a row of the loaded page.
func (c *Controller[R]) ToggleRow(id string) error {
	onPage := false
	for _, pid := range c.pageIDs() {
		if pid == id {
			onPage = true
			break
		}
	}
	return c.apply(func(s *viewstate.ViewState) error {
		switch {
		case s.Selection.Has(id):
			s.Selection.Remove(id)
		case onPage:
			s.Selection.Add(id)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownRow, id)
		}
		return nil
	})
}

// SelectPage selects every row of the loaded page.
func (c *Controller[R]) SelectPage() error {
	ids := c.pageIDs()
	return c.apply(func(s *viewstate.ViewState) error {
		for _, id := range ids {
			s.Selection.Add(id)
		}
		return nil
	})
}

// ClearSelection deselects everything.
func (c *Controller[R]) ClearSelection() error {
	return c.apply(func(s *viewstate.ViewState) error {
		s.Selection = viewstate.Set{}
		return nil
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Refresh and bulk
// ═══════════════════════════════════════════════════════════════════════════

// Refresh re-fetches the current page with the current parameters.
func (c *Controller[R]) Refresh() error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	_, _, err := c.orch.Refresh()
	c.mu.Unlock()

	c.notify()
	return err
}

// RefreshOptions replaces every option catalog and narrows the current
// filters against the new catalogs.
func (c *Controller[R]) RefreshOptions(ctx context.Context) error {
	if err := c.loadOptions(ctx); err != nil {
		return err
	}
	if err := c.apply(func(*viewstate.ViewState) error { return nil }); err != nil {
		return err
	}
	c.notify()
	return nil
}

// RequestDelete opens the delete confirmation for ids, or for the current
// selection when no ids are given.
func (c *Controller[R]) RequestDelete(ids ...string) error {
	if err := c.cfg.Gate.Allow(ActionDelete); err != nil {
		return err
	}
	if c.cfg.Mutator == nil {
		return ErrDeleteUnsupported
	}
	if len(ids) == 0 {
		ids = c.State().Selection.Sorted()
	}
	return c.bulk.Begin(bulk.Operation{
		Name: ActionDelete,
		Run:  c.cfg.Mutator.DeleteMany,
	}, ids)
}

// ConfirmBulk runs the pending mutation. On success the selection is
// cleared and the page re-fetched.
func (c *Controller[R]) ConfirmBulk(ctx context.Context) error {
	return c.bulk.Confirm(ctx)
}

// CancelBulk closes the confirmation dialog.
func (c *Controller[R]) CancelBulk() error {
	return c.bulk.Cancel()
}

// Dialog returns the confirmation dialog state.
func (c *Controller[R]) Dialog() bulk.Dialog {
	return c.bulk.Dialog()
}

func (c *Controller[R]) afterBulk(op string, ids []string) {
	c.logger.Debug("refreshing after bulk mutation",
		zap.String("op", op),
		zap.Int("ids", len(ids)))
	if err := c.ClearSelection(); err != nil && !errors.Is(err, ErrNotMounted) {
		c.logger.Warn("clear selection failed", zap.Error(err))
	}
	if err := c.Refresh(); err != nil && !errors.Is(err, ErrNotMounted) {
		c.logger.Warn("refresh after bulk failed", zap.Error(err))
	}
}
