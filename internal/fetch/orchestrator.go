// Package fetch turns view requests into remote page loads and keeps the
// single authoritative result for a table. Responses are applied in request
// order: a response that arrives after a newer request was issued is dropped.
package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imgajeed76/gridsync/internal/logging"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("fetch: orchestrator closed")

// Status is the lifecycle state of a table's data.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Page is one successful response of the fetch contract.
type Page[R any] struct {
	Rows  []R
	Total int
}

// Fetcher runs a paginated query against the remote store.
type Fetcher[R any] interface {
	Fetch(ctx context.Context, req viewstate.Request) (Page[R], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[R any] func(ctx context.Context, req viewstate.Request) (Page[R], error)

// Fetch implements Fetcher.
func (f FetcherFunc[R]) Fetch(ctx context.Context, req viewstate.Request) (Page[R], error) {
	return f(ctx, req)
}

// Result is what a renderer displays.
type Result[R any] struct {
	Rows   []R
	Total  int
	Status Status
	Err    error

	// Shown is the request whose rows are displayed. Pending is the newest
	// request issued; it differs from Shown while loading or after an error.
	Shown   viewstate.Request
	Pending viewstate.Request

	// Version increases with every transition. Listeners may be invoked
	// concurrently and should drop results older than the last one seen.
	Version   uint64
	UpdatedAt time.Time
}

// PageCount is ceil(Total / page size) for the displayed request.
func (r Result[R]) PageCount() int {
	return PageCount(r.Total, r.Shown.PageSize)
}

// PageCount returns ceil(total / pageSize), or 0 when pageSize is not positive.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		logger = logging.OrNop(logger)
		o.logger = logger
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Orchestrator owns the result of one table instance.
type Orchestrator[R any] struct {
	fetcher Fetcher[R]
	logger  *zap.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	ticket    uint64
	latest    viewstate.Request
	result    Result[R]
	closed    bool
	listeners map[int]func(Result[R])
	nextID    int
}

// New returns an idle orchestrator. Fetches run under a context derived from
// ctx that is cancelled by Close.
func New[R any](ctx context.Context, fetcher Fetcher[R], opts ...Option) *Orchestrator[R] {
	cfg := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	fctx, cancel := context.WithCancel(ctx)
	return &Orchestrator[R]{
		fetcher:   fetcher,
		logger:    cfg.logger,
		now:       cfg.now,
		ctx:       fctx,
		cancel:    cancel,
		listeners: make(map[int]func(Result[R])),
	}
}

// Load issues req and returns its ticket. Earlier in-flight requests are not
// cancelled; their responses are ignored when they arrive.
func (o *Orchestrator[R]) Load(req viewstate.Request) (uint64, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, ErrClosed
	}
	o.ticket++
	ticket := o.ticket
	o.latest = req
	o.result.Status = StatusLoading
	o.result.Err = nil
	o.result.Pending = req
	snap := o.transitionLocked()
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Debug("fetch issued",
		zap.Uint64("ticket", ticket),
		zap.String("key", req.Key()))
	o.notify(snap)

	go o.run(ticket, req)
	return ticket, nil
}

// Refresh re-issues the latest request. It reports false when nothing was
// loaded yet.
func (o *Orchestrator[R]) Refresh() (uint64, bool, error) {
	o.mu.Lock()
	latest := o.latest
	o.mu.Unlock()
	if latest.IsZero() {
		return 0, false, nil
	}
	ticket, err := o.Load(latest)
	return ticket, err == nil, err
}

func (o *Orchestrator[R]) run(ticket uint64, req viewstate.Request) {
	defer o.wg.Done()

	start := o.now()
	page, err := o.fetcher.Fetch(o.ctx, req)

	o.mu.Lock()
	if o.closed || ticket != o.ticket {
		newest := o.ticket
		o.mu.Unlock()
		o.logger.Debug("discarding superseded response",
			zap.Uint64("ticket", ticket),
			zap.Uint64("newest", newest),
			zap.String("key", req.Key()))
		return
	}

	if err != nil {
		// Keep the rows already on screen; only the status changes.
		o.result.Status = StatusError
		o.result.Err = err
	} else {
		o.result.Rows = page.Rows
		o.result.Total = page.Total
		o.result.Status = StatusSuccess
		o.result.Err = nil
		o.result.Shown = req
	}
	snap := o.transitionLocked()
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("fetch failed",
			zap.Uint64("ticket", ticket),
			zap.String("key", req.Key()),
			zap.Duration("elapsed", o.now().Sub(start)),
			zap.Error(err))
	} else {
		o.logger.Debug("fetch applied",
			zap.Uint64("ticket", ticket),
			zap.Int("rows", len(page.Rows)),
			zap.Int("total", page.Total),
			zap.Duration("elapsed", o.now().Sub(start)))
	}
	o.notify(snap)
}

func (o *Orchestrator[R]) transitionLocked() Result[R] {
	o.result.Version++
	o.result.UpdatedAt = o.now()
	return o.result
}

// Result returns the current result.
func (o *Orchestrator[R]) Result() Result[R] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Subscribe registers fn for every transition and returns a function that
// removes it.
func (o *Orchestrator[R]) Subscribe(fn func(Result[R])) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator[R]) notify(r Result[R]) {
	o.mu.Lock()
	fns := make([]func(Result[R]), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}

// Close cancels in-flight fetches, drops their results and waits for their
// goroutines to finish. It is safe to call more than once.
func (o *Orchestrator[R]) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}
