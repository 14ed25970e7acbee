package grid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/imgajeed76/gridsync/internal/access"
	"github.com/imgajeed76/gridsync/internal/bulk"
	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type device struct {
	ID         string
	Name       string
	Status     string
	Direction  string
	Department string
}

func (d device) field(name string) string {
	switch name {
	case "name":
		return d.Name
	case "status":
		return d.Status
	case "direction_id":
		return d.Direction
	case "department_id":
		return d.Department
	}
	return ""
}

// memoryStore is an in-process backend for the fetch, options and delete
// contracts.
type memoryStore struct {
	mu        sync.Mutex
	rows      []device
	requests  []viewstate.Request
	deletes   [][]string
	deleteErr error
	optErr    map[string]error
	catalogs  map[string][]cascade.Option
}

func newMemoryStore(n int) *memoryStore {
	m := &memoryStore{
		optErr: map[string]error{},
		catalogs: map[string][]cascade.Option{
			"status": {{ID: "active", Label: "Active"}, {ID: "retired", Label: "Retired"}},
			"direction_id": {
				{ID: "D1", Label: "Surgery"},
				{ID: "D2", Label: "Radiology"},
			},
			"department_id": {
				{ID: "Dept1", Label: "MRI", ParentID: "D2"},
				{ID: "Dept2", Label: "Theatre A", ParentID: "D1"},
				{ID: "Dept3", Label: "Theatre B", ParentID: "D1"},
			},
		},
	}
	for i := 1; i <= n; i++ {
		d := device{
			ID:         fmt.Sprintf("r%d", i),
			Name:       fmt.Sprintf("pump-%02d", i),
			Status:     "active",
			Direction:  "D1",
			Department: "Dept2",
		}
		if i%2 == 0 {
			d.Direction, d.Department = "D2", "Dept1"
		}
		if i%5 == 0 {
			d.Status = "retired"
		}
		m.rows = append(m.rows, d)
	}
	return m
}

func (m *memoryStore) Fetch(ctx context.Context, req viewstate.Request) (fetch.Page[device], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	var matched []device
	for _, d := range m.rows {
		if req.Search != "" && !strings.Contains(d.Name, req.Search) {
			continue
		}
		ok := true
		for dim, values := range req.Filters {
			if !viewstate.NewSet(values...).Has(d.field(dim)) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, d)
		}
	}
	if req.SortColumn != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := matched[i].field(req.SortColumn), matched[j].field(req.SortColumn)
			if req.SortDirection == viewstate.DirectionDesc {
				return a > b
			}
			return a < b
		})
	}

	start := min(req.PageIndex*req.PageSize, len(matched))
	end := min(start+req.PageSize, len(matched))
	return fetch.Page[device]{
		Rows:  append([]device(nil), matched[start:end]...),
		Total: len(matched),
	}, nil
}

func (m *memoryStore) Options(ctx context.Context, dim string) ([]cascade.Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.optErr[dim]; err != nil {
		return nil, err
	}
	return m.catalogs[dim], nil
}

func (m *memoryStore) DeleteMany(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, ids)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	drop := viewstate.NewSet(ids...)
	kept := m.rows[:0]
	for _, d := range m.rows {
		if !drop.Has(d.ID) {
			kept = append(kept, d)
		}
	}
	m.rows = kept
	return nil
}

func (m *memoryStore) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type urlLog struct {
	mu     sync.Mutex
	writes []string
}

func (u *urlLog) Replace(q string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.writes = append(u.writes, q)
	return nil
}

func (u *urlLog) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.writes)
}

func (u *urlLog) last() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.writes) == 0 {
		return ""
	}
	return u.writes[len(u.writes)-1]
}

func deviceSchema() viewstate.Schema {
	return viewstate.Schema{
		PageSizes:       []int{10, 20, 50, 100},
		DefaultPageSize: 10,
		Columns: []viewstate.Column{
			{ID: "name", Title: "Name", Sortable: true},
			{ID: "serial", Title: "Serial"},
			{ID: "status", Title: "Status", Sortable: true},
			{ID: "notes", Title: "Notes", Hidden: true},
		},
		Dimensions: []viewstate.Dimension{
			{ID: "status", Title: "Status"},
			{ID: "direction_id", Title: "Direction"},
			{ID: "department_id", Title: "Department", Parent: "direction_id"},
		},
	}
}

type fixture struct {
	c     *Controller[device]
	store *memoryStore
	urls  *urlLog
}

func setup(t *testing.T, raw string, opts ...func(*Config[device])) *fixture {
	t.Helper()
	store := newMemoryStore(25)
	urls := &urlLog{}
	cfg := Config[device]{
		Schema:  deviceSchema(),
		Fetcher: store,
		RowID:   func(d device) string { return d.ID },
		Options: store,
		Mutator: store,
		URL:     urls,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Mount(context.Background(), raw))
	t.Cleanup(c.Unmount)

	f := &fixture{c: c, store: store, urls: urls}
	f.settle(t)
	return f
}

// settle waits until the result shown matches the current state.
func (f *fixture) settle(t *testing.T) fetch.Result[device] {
	t.Helper()
	want := f.c.Codec().Request(f.c.State()).Key()
	require.Eventually(t, func() bool {
		r := f.c.Result()
		return r.Status != fetch.StatusLoading && r.Shown.Key() == want
	}, time.Second, time.Millisecond)
	return f.c.Result()
}

func ids(rows []device) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestMountDefaults(t *testing.T) {
	f := setup(t, "")

	assert.Equal(t, []string{""}, f.urls.writes)
	assert.Equal(t, 1, f.store.fetchCount())

	snap := f.c.Snapshot()
	assert.Equal(t, 25, snap.Result.Total)
	assert.Equal(t, 3, snap.PageCount)
	assert.Len(t, snap.Result.Rows, 10)
	assert.False(t, snap.OutOfRange)
	assert.Equal(t, []string{"name", "serial", "status"}, columnIDs(snap.Columns))
}

func TestMountNarrowsRestoredFilters(t *testing.T) {
	f := setup(t, "?direction_id=D1&department_id=Dept1,Dept2&page=abc")

	assert.Equal(t, []string{"Dept2"}, f.c.State().FilterValues("department_id"))
	assert.Equal(t, []string{"department_id=Dept2&direction_id=D1"}, f.urls.writes)
	assert.Equal(t, 0, f.c.State().PageIndex)
}

func TestEachEffectiveMutationWritesOnce(t *testing.T) {
	f := setup(t, "")

	steps := []struct {
		name      string
		do        func() error
		wantWrite bool
		wantFetch bool
	}{
		{"page", func() error { return f.c.SetPage(1) }, true, true},
		{"same page", func() error { return f.c.SetPage(1) }, false, false},
		{"show hidden column", func() error { return f.c.SetColumnVisible("notes", true) }, true, false},
		{"search", func() error { return f.c.SetSearch("pump-1") }, true, true},
		{"same search", func() error { return f.c.SetSearch("pump-1") }, false, false},
		{"sort", func() error { return f.c.CycleSort("name") }, true, true},
		{"filter", func() error { return f.c.SetFilter("status", "active") }, true, true},
		{"clear filters", func() error { return f.c.ClearFilters() }, true, true},
		{"clear nothing", func() error { return f.c.ClearFilters() }, false, false},
	}
	for _, step := range steps {
		writes, fetches := f.urls.count(), f.store.fetchCount()
		require.NoError(t, step.do(), step.name)
		f.settle(t)

		assert.Equal(t, b2i(step.wantWrite), f.urls.count()-writes, "%s: url writes", step.name)
		assert.Equal(t, b2i(step.wantFetch), f.store.fetchCount()-fetches, "%s: fetches", step.name)
		assert.Equal(t, f.c.Query(), f.urls.last(), step.name)
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestSearchKeepsPageIndex(t *testing.T) {
	f := setup(t, "page=2")
	require.NoError(t, f.c.SetSearch("pump"))
	assert.Equal(t, 2, f.c.State().PageIndex)
}

func TestSetPageSizeResetsPage(t *testing.T) {
	f := setup(t, "page=2")

	require.NoError(t, f.c.SetPageSize(20))
	st := f.c.State()
	assert.Equal(t, 0, st.PageIndex)
	assert.Equal(t, 20, st.PageSize)
	assert.Equal(t, "pageSize=20", f.urls.last())

	assert.ErrorIs(t, f.c.SetPageSize(7), ErrInvalidPageSize)

	require.NoError(t, f.c.StepPageSize(1))
	assert.Equal(t, 50, f.c.State().PageSize)
	require.NoError(t, f.c.StepPageSize(-5))
	assert.Equal(t, 10, f.c.State().PageSize)
}

func TestCycleSort(t *testing.T) {
	f := setup(t, "")

	require.NoError(t, f.c.CycleSort("name"))
	assert.Equal(t, "sortColumn=name&sortDirection=asc", f.c.Query())
	require.NoError(t, f.c.CycleSort("name"))
	assert.Equal(t, "sortColumn=name&sortDirection=desc", f.c.Query())
	res := f.settle(t)
	assert.Equal(t, "pump-25", res.Rows[0].Name)
	require.NoError(t, f.c.CycleSort("name"))
	assert.Equal(t, "", f.c.Query())

	assert.ErrorIs(t, f.c.CycleSort("serial"), ErrNotSortable)
	assert.ErrorIs(t, f.c.SetSort("nope", false), ErrUnknownColumn)
}

func TestChangingParentNarrowsDependent(t *testing.T) {
	f := setup(t, "")

	require.NoError(t, f.c.SetFilter("direction_id", "D1"))
	f.settle(t)
	require.NoError(t, f.c.SetFilter("department_id", "Dept2", "Dept3"))
	f.settle(t)
	assert.Equal(t, []string{"Dept2", "Dept3"}, optionIDs(f.c.Options("department_id")))

	writes, fetches := f.urls.count(), f.store.fetchCount()
	require.NoError(t, f.c.SetFilter("direction_id", "D2"))
	f.settle(t)
	assert.Equal(t, writes+1, f.urls.count(), "parent change and narrowing are one write")
	assert.Equal(t, fetches+1, f.store.fetchCount(), "parent change and narrowing are one fetch")
	assert.Empty(t, f.c.State().FilterValues("department_id"))
	assert.Equal(t, "direction_id=D2", f.urls.last())

	f.store.mu.Lock()
	last := f.store.requests[len(f.store.requests)-1]
	f.store.mu.Unlock()
	assert.Equal(t, map[string][]string{"direction_id": {"D2"}}, last.Filters)
	assert.Equal(t, []string{"Dept1"}, optionIDs(f.c.Options("department_id")))
}

func TestClearingParentWidensDependent(t *testing.T) {
	f := setup(t, "direction_id=D1&department_id=Dept2")

	require.NoError(t, f.c.SetFilter("direction_id"))
	assert.Equal(t, []string{"Dept2"}, f.c.State().FilterValues("department_id"))
	assert.Len(t, f.c.Options("department_id"), 3)
}

func TestDimensionLinks(t *testing.T) {
	f := setup(t, "")

	assert.Equal(t, "direction_id", f.c.Parent("department_id"))
	assert.Equal(t, "", f.c.Parent("status"))
	assert.Equal(t, []string{"department_id"}, f.c.Dependents("direction_id"))
	assert.Empty(t, f.c.Dependents("department_id"))
}

func TestToggleFilter(t *testing.T) {
	f := setup(t, "")

	require.NoError(t, f.c.ToggleFilter("status", "retired"))
	res := f.settle(t)
	assert.Equal(t, 5, res.Total)
	require.NoError(t, f.c.ToggleFilter("status", "retired"))
	assert.Equal(t, "", f.c.Query())

	assert.ErrorIs(t, f.c.ToggleFilter("colour", "red"), ErrUnknownDimension)
}

func TestSelection(t *testing.T) {
	f := setup(t, "")

	require.NoError(t, f.c.ToggleRow("r1"))
	require.NoError(t, f.c.ToggleRow("r2"))
	assert.Equal(t, []string{"r1", "r2"}, f.c.State().Selection.Sorted())
	assert.ErrorIs(t, f.c.ToggleRow("r99"), ErrUnknownRow)

	writes := f.urls.count()
	require.NoError(t, f.c.ToggleColumn("serial"))
	assert.Equal(t, []string{"r1", "r2"}, f.c.State().Selection.Sorted(), "visibility keeps selection")

	require.NoError(t, f.c.SelectPage())
	assert.Len(t, f.c.State().Selection, 10)
	assert.Equal(t, writes+1, f.urls.count(), "selection is not part of the query")

	require.NoError(t, f.c.NextPage())
	assert.Empty(t, f.c.State().Selection, "fetch key change clears selection")
}

func TestNextPageStopsAtLastPage(t *testing.T) {
	f := setup(t, "page=2")

	require.NoError(t, f.c.NextPage())
	assert.Equal(t, 2, f.c.State().PageIndex)
	require.NoError(t, f.c.PrevPage())
	require.NoError(t, f.c.PrevPage())
	require.NoError(t, f.c.PrevPage())
	assert.Equal(t, 0, f.c.State().PageIndex)
}

func TestOutOfRangePageIsKept(t *testing.T) {
	f := setup(t, "page=2")

	require.NoError(t, f.c.SetFilter("status", "retired"))
	f.settle(t)
	snap := f.c.Snapshot()
	assert.Equal(t, 2, snap.State.PageIndex)
	assert.Empty(t, snap.Result.Rows)
	assert.Equal(t, 1, snap.PageCount)
	assert.True(t, snap.OutOfRange)
}

func TestBulkDeleteSuccess(t *testing.T) {
	f := setup(t, "")
	require.NoError(t, f.c.ToggleRow("r1"))
	require.NoError(t, f.c.ToggleRow("r2"))
	fetches := f.store.fetchCount()

	require.NoError(t, f.c.RequestDelete())
	d := f.c.Dialog()
	require.True(t, d.Open)
	assert.Equal(t, []string{"r1", "r2"}, d.IDs)

	require.NoError(t, f.c.ConfirmBulk(context.Background()))

	assert.False(t, f.c.Dialog().Open)
	assert.Empty(t, f.c.State().Selection)
	assert.Equal(t, [][]string{{"r1", "r2"}}, f.store.deletes)

	require.Eventually(t, func() bool {
		r := f.c.Result()
		return r.Status == fetch.StatusSuccess && r.Total == 23
	}, time.Second, time.Millisecond)
	assert.Equal(t, fetches+1, f.store.fetchCount())
	assert.NotContains(t, ids(f.c.Result().Rows), "r1")
}

func TestBulkDeleteFailureKeepsSelection(t *testing.T) {
	var notified []error
	f := setup(t, "", func(cfg *Config[device]) {
		cfg.Notifier = bulk.NotifierFunc(func(err error) { notified = append(notified, err) })
	})
	boom := errors.New("409: device in use")
	f.store.deleteErr = boom

	require.NoError(t, f.c.ToggleRow("r1"))
	require.NoError(t, f.c.ToggleRow("r2"))
	require.NoError(t, f.c.RequestDelete())

	err := f.c.ConfirmBulk(context.Background())
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"r1", "r2"}, f.c.State().Selection.Sorted())
	d := f.c.Dialog()
	assert.True(t, d.Open)
	assert.ErrorIs(t, d.Err, boom)
	assert.Equal(t, []error{boom}, notified)

	require.NoError(t, f.c.CancelBulk())
	assert.False(t, f.c.Dialog().Open)
}

func TestRequestDeleteGates(t *testing.T) {
	f := setup(t, "")
	assert.ErrorIs(t, f.c.RequestDelete(), bulk.ErrNothingSelected)

	gate, err := access.NewGate(access.Rules{
		Actions: map[string]string{ActionDelete: "admin"},
		Columns: map[string]string{"serial": `"it" in groups`},
	}, access.Capabilities{UserID: "nurse"})
	require.NoError(t, err)

	g := setup(t, "", func(cfg *Config[device]) { cfg.Gate = gate })
	assert.ErrorIs(t, g.c.RequestDelete("r1"), access.ErrForbidden)
	assert.Equal(t, []string{"name", "status"}, columnIDs(g.c.VisibleColumns()))

	h := setup(t, "", func(cfg *Config[device]) { cfg.Mutator = nil })
	assert.ErrorIs(t, h.c.RequestDelete("r1"), ErrDeleteUnsupported)
}

func TestOptionsFailureDegradesDimension(t *testing.T) {
	store := newMemoryStore(5)
	store.optErr["department_id"] = errors.New("options endpoint down")

	c, err := New(Config[device]{
		Schema:  deviceSchema(),
		Fetcher: store,
		Options: store,
		RowID:   func(d device) string { return d.ID },
	})
	require.NoError(t, err)
	require.NoError(t, c.Mount(context.Background(), "direction_id=D2&department_id=Dept2"))
	defer c.Unmount()

	assert.Equal(t, []string{"department_id"}, c.Unavailable())
	assert.Equal(t, []string{"Dept2"}, c.State().FilterValues("department_id"), "not narrowed without options")

	store.mu.Lock()
	delete(store.optErr, "department_id")
	store.mu.Unlock()
	require.NoError(t, c.RefreshOptions(context.Background()))
	assert.Empty(t, c.Unavailable())
	assert.Empty(t, c.State().FilterValues("department_id"))
}

func TestSubscribe(t *testing.T) {
	f := setup(t, "")

	var (
		mu   sync.Mutex
		seen []Snapshot[device]
	)
	cancel := f.c.Subscribe(func(s Snapshot[device]) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		_ = f.c.State()
	})

	require.NoError(t, f.c.SetPage(1))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range seen {
			if s.Result.Status == fetch.StatusSuccess && s.Result.Shown.PageIndex == 1 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	cancel()
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	require.NoError(t, f.c.SetPage(2))
	f.settle(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, n)
}

func TestNotMounted(t *testing.T) {
	store := newMemoryStore(1)
	c, err := New(Config[device]{
		Schema:  deviceSchema(),
		Fetcher: store,
		RowID:   func(d device) string { return d.ID },
	})
	require.NoError(t, err)

	assert.ErrorIs(t, c.SetPage(1), ErrNotMounted)
	assert.ErrorIs(t, c.Refresh(), ErrNotMounted)
	assert.Equal(t, fetch.StatusIdle, c.Result().Status)

	require.NoError(t, c.Mount(context.Background(), ""))
	assert.ErrorIs(t, c.Mount(context.Background(), ""), ErrMounted)
	c.Unmount()
	c.Unmount()
	assert.ErrorIs(t, c.SetPage(1), ErrNotMounted)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config[device]{Schema: deviceSchema()})
	assert.Error(t, err)

	bad := deviceSchema()
	bad.Dimensions = append(bad.Dimensions, viewstate.Dimension{ID: "page"})
	_, err = New(Config[device]{
		Schema:  bad,
		Fetcher: newMemoryStore(0),
		RowID:   func(d device) string { return d.ID },
	})
	assert.ErrorIs(t, err, viewstate.ErrReservedDimension)
}

func columnIDs(cols []viewstate.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.ID
	}
	return out
}

func optionIDs(opts []cascade.Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.ID
	}
	return out
}
