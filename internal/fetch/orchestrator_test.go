package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedFetcher blocks every fetch for a page until the test releases it.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[int]chan struct{}
	fail  map[int]error
	calls int
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		gates: make(map[int]chan struct{}),
		fail:  make(map[int]error),
	}
}

func (f *gatedFetcher) gate(page int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[page]
	if !ok {
		g = make(chan struct{})
		f.gates[page] = g
	}
	return g
}

func (f *gatedFetcher) release(page int) {
	close(f.gate(page))
}

func (f *gatedFetcher) failPage(page int, err error) {
	f.mu.Lock()
	f.fail[page] = err
	f.mu.Unlock()
}

func (f *gatedFetcher) Fetch(ctx context.Context, req viewstate.Request) (Page[string], error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	select {
	case <-f.gate(req.PageIndex):
	case <-ctx.Done():
		return Page[string]{}, ctx.Err()
	}

	f.mu.Lock()
	err := f.fail[req.PageIndex]
	f.mu.Unlock()
	if err != nil {
		return Page[string]{}, err
	}
	return Page[string]{
		Rows:  []string{fmt.Sprintf("row-p%d", req.PageIndex)},
		Total: 42,
	}, nil
}

func pageReq(page int) viewstate.Request {
	return viewstate.Request{PageIndex: page, PageSize: 10}
}

func waitStatus(t *testing.T, o *Orchestrator[string], want Status) Result[string] {
	t.Helper()
	require.Eventually(t, func() bool {
		return o.Result().Status == want
	}, time.Second, time.Millisecond)
	return o.Result()
}

func TestOutOfOrderResponseIsDropped(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newGatedFetcher()
	o := New[string](context.Background(), f, WithLogger(zap.New(core)))
	defer o.Close()

	_, err := o.Load(pageReq(0)) // A
	require.NoError(t, err)
	_, err = o.Load(pageReq(1)) // B
	require.NoError(t, err)
	assert.Equal(t, StatusLoading, o.Result().Status)

	f.release(1)
	res := waitStatus(t, o, StatusSuccess)
	assert.Equal(t, []string{"row-p1"}, res.Rows)
	assert.Equal(t, 1, res.Shown.PageIndex)

	f.release(0)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("discarding superseded response").Len() == 1
	}, time.Second, time.Millisecond)

	res = o.Result()
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"row-p1"}, res.Rows)
	assert.Equal(t, 1, res.Shown.PageIndex)
}

func TestEarlierResponseArrivingFirstIsDropped(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newGatedFetcher()
	o := New[string](context.Background(), f, WithLogger(zap.New(core)))
	defer o.Close()

	_, _ = o.Load(pageReq(0))
	_, _ = o.Load(pageReq(1))

	f.release(0)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("discarding superseded response").Len() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, StatusLoading, o.Result().Status)
	assert.Empty(t, o.Result().Rows)

	f.release(1)
	res := waitStatus(t, o, StatusSuccess)
	assert.Equal(t, []string{"row-p1"}, res.Rows)
}

func TestErrorKeepsPreviousRows(t *testing.T) {
	f := newGatedFetcher()
	o := New[string](context.Background(), f)
	defer o.Close()

	f.release(0)
	_, _ = o.Load(pageReq(0))
	waitStatus(t, o, StatusSuccess)

	boom := errors.New("backend unavailable")
	f.failPage(1, boom)
	f.release(1)
	_, _ = o.Load(pageReq(1))

	res := waitStatus(t, o, StatusError)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, []string{"row-p0"}, res.Rows)
	assert.Equal(t, 42, res.Total)
	assert.Equal(t, 0, res.Shown.PageIndex)
	assert.Equal(t, 1, res.Pending.PageIndex)
}

func TestLoadClearsPreviousError(t *testing.T) {
	f := newGatedFetcher()
	o := New[string](context.Background(), f)
	defer o.Close()

	f.failPage(0, errors.New("boom"))
	f.release(0)
	_, _ = o.Load(pageReq(0))
	waitStatus(t, o, StatusError)

	_, _ = o.Load(pageReq(3))
	res := o.Result()
	assert.Equal(t, StatusLoading, res.Status)
	assert.NoError(t, res.Err)
}

func TestRefreshReissuesLatest(t *testing.T) {
	f := newGatedFetcher()
	o := New[string](context.Background(), f)
	defer o.Close()

	_, ok, err := o.Refresh()
	require.NoError(t, err)
	assert.False(t, ok, "nothing loaded yet")

	f.release(2)
	first, err := o.Load(pageReq(2))
	require.NoError(t, err)
	waitStatus(t, o, StatusSuccess)

	second, ok, err := o.Refresh()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, second, first)
	res := waitStatus(t, o, StatusSuccess)
	assert.Equal(t, 2, res.Shown.PageIndex)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 2, f.calls)
}

func TestSubscribeSeesIncreasingVersions(t *testing.T) {
	f := newGatedFetcher()
	o := New[string](context.Background(), f)
	defer o.Close()

	var (
		mu       sync.Mutex
		statuses []Status
		last     uint64
	)
	cancel := o.Subscribe(func(r Result[string]) {
		mu.Lock()
		defer mu.Unlock()
		assert.Greater(t, r.Version, last)
		last = r.Version
		statuses = append(statuses, r.Status)
	})

	f.release(0)
	_, _ = o.Load(pageReq(0))
	waitStatus(t, o, StatusSuccess)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2
	}, time.Second, time.Millisecond)

	cancel()
	_, _ = o.Load(pageReq(0))
	waitStatus(t, o, StatusSuccess)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, statuses)
}

func TestCloseCancelsInFlight(t *testing.T) {
	f := newGatedFetcher()
	o := New[string](context.Background(), f)

	_, err := o.Load(pageReq(5))
	require.NoError(t, err)
	o.Close()
	o.Close()

	assert.Equal(t, StatusLoading, o.Result().Status)
	_, err = o.Load(pageReq(6))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{100, 20, 5},
		{5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, PageCount(tt.total, tt.size))
		})
	}

	r := Result[string]{Total: 45, Shown: viewstate.Request{PageSize: 20}}
	assert.Equal(t, 3, r.PageCount())
}
