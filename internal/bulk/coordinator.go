// Package bulk runs confirmed batch mutations over a set of row ids.
//
// A mutation goes through a confirmation dialog: Begin opens it, Confirm
// issues exactly one batched request for the full id set, Cancel closes it.
// A failed mutation leaves the dialog open with the error so the user can
// retry or cancel.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/imgajeed76/gridsync/internal/logging"
)

var (
	ErrNothingSelected = errors.New("bulk: no rows selected")
	ErrNoDialog        = errors.New("bulk: no confirmation pending")
	ErrBusy            = errors.New("bulk: mutation already running")
)

// Operation is a batch mutation. Run receives every id in one call.
type Operation struct {
	Name string
	Run  func(ctx context.Context, ids []string) error
}

// Dialog is the confirmation state a renderer displays.
type Dialog struct {
	Open      bool
	Operation string
	IDs       []string
	Busy      bool
	Err       error
}

// Notifier receives mutation failures (toast, status line, log).
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

// Notify implements Notifier.
func (f NotifierFunc) Notify(err error) { f(err) }

// Config wires a Coordinator to its collaborators. Every field is optional.
type Config struct {
	Notifier Notifier
	// OnSuccess runs after a mutation succeeded and the dialog closed.
	OnSuccess func(op string, ids []string)
	// OnChange runs after every dialog transition.
	OnChange func(Dialog)
	Logger   *zap.Logger
}

// Coordinator owns one confirmation dialog.
type Coordinator struct {
	cfg Config

	mu     sync.Mutex
	op     Operation
	dialog Dialog
}

// New returns a coordinator with a closed dialog.
func New(cfg Config) *Coordinator {
	cfg.Logger = logging.OrNop(cfg.Logger)
	return &Coordinator{cfg: cfg}
}

// Begin opens the confirmation dialog for op over ids. An open, idle dialog
// is replaced.
func (c *Coordinator) Begin(op Operation, ids []string) error {
	if len(ids) == 0 {
		return ErrNothingSelected
	}

	c.mu.Lock()
	if c.dialog.Busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.op = op
	c.dialog = Dialog{
		Open:      true,
		Operation: op.Name,
		IDs:       append([]string(nil), ids...),
	}
	d := c.snapshotLocked()
	c.mu.Unlock()

	c.changed(d)
	return nil
}

// Cancel closes the dialog without mutating anything. A running mutation
// cannot be cancelled.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	if c.dialog.Busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.dialog.Open {
		c.mu.Unlock()
		return nil
	}
	c.op = Operation{}
	c.dialog = Dialog{}
	d := c.snapshotLocked()
	c.mu.Unlock()

	c.changed(d)
	return nil
}

// Confirm runs the pending operation once with the full id set.
func (c *Coordinator) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if !c.dialog.Open {
		c.mu.Unlock()
		return ErrNoDialog
	}
	if c.dialog.Busy {
		c.mu.Unlock()
		return ErrBusy
	}
	op := c.op
	ids := append([]string(nil), c.dialog.IDs...)
	c.dialog.Busy = true
	c.dialog.Err = nil
	d := c.snapshotLocked()
	c.mu.Unlock()
	c.changed(d)

	c.cfg.Logger.Debug("bulk mutation started",
		zap.String("op", op.Name),
		zap.Int("ids", len(ids)))

	err := op.Run(ctx, ids)

	c.mu.Lock()
	c.dialog.Busy = false
	if err != nil {
		c.dialog.Err = err
	} else {
		c.op = Operation{}
		c.dialog = Dialog{}
	}
	d = c.snapshotLocked()
	c.mu.Unlock()

	if err != nil {
		c.cfg.Logger.Warn("bulk mutation failed",
			zap.String("op", op.Name),
			zap.Strings("ids", ids),
			zap.Error(err))
		if c.cfg.Notifier != nil {
			c.cfg.Notifier.Notify(err)
		}
		c.changed(d)
		return fmt.Errorf("%s of %d rows: %w", op.Name, len(ids), err)
	}

	c.cfg.Logger.Info("bulk mutation done",
		zap.String("op", op.Name),
		zap.Int("ids", len(ids)))
	c.changed(d)
	if c.cfg.OnSuccess != nil {
		c.cfg.OnSuccess(op.Name, ids)
	}
	return nil
}

// Dialog returns the current dialog state.
func (c *Coordinator) Dialog() Dialog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Dialog {
	d := c.dialog
	d.IDs = append([]string(nil), c.dialog.IDs...)
	return d
}

func (c *Coordinator) changed(d Dialog) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(d)
	}
}
