package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/logging"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

var (
	ErrNoTable   = errors.New("db: table name is required")
	ErrNoOptions = errors.New("db: no options table for dimension")
	ErrClosed    = errors.New("db: pool is closed")

	// ErrPageOutOfRange is returned when a page's row offset does not fit
	// a bigint.
	ErrPageOutOfRange = errors.New("db: page offset out of range")
)

// Source serves the fetch, options and delete contracts straight from
// Postgres.
type Source struct {
	db     *DB
	spec   TableSpec
	logger *zap.Logger
}

// NewSource returns a source for spec. An empty IDColumn means "id".
func NewSource(db *DB, spec TableSpec, logger *zap.Logger) (*Source, error) {
	if spec.Table == "" {
		return nil, ErrNoTable
	}
	if spec.IDColumn == "" {
		spec.IDColumn = "id"
	}
	logger = logging.OrNop(logger)
	return &Source{db: db, spec: spec, logger: logger}, nil
}

// Fetch counts the matching rows and reads one page in the same snapshot.
func (s *Source) Fetch(ctx context.Context, req viewstate.Request) (fetch.Page[record.Record], error) {
	q, err := buildPage(s.spec, req)
	if err != nil {
		return fetch.Page[record.Record]{}, err
	}
	var page fetch.Page[record.Record]

	err = s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, q.Count, q.Args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count %s: %w", s.spec.Table, err)
		}
		rows, err := tx.Query(ctx, q.Rows, q.RowArgs...)
		if err != nil {
			return fmt.Errorf("select %s: %w", s.spec.Table, err)
		}
		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return fmt.Errorf("read %s: %w", s.spec.Table, err)
		}
		page.Rows = make([]record.Record, len(maps))
		for i, m := range maps {
			page.Rows[i] = record.Record(m)
		}
		return nil
	})
	if err != nil {
		return fetch.Page[record.Record]{}, err
	}

	s.logger.Debug("page read",
		zap.String("table", s.spec.Table),
		zap.String("key", req.Key()),
		zap.Int("rows", len(page.Rows)),
		zap.Int("total", page.Total))
	return page, nil
}

// Options reads the catalog table of dimension.
func (s *Source) Options(ctx context.Context, dimension string) ([]cascade.Option, error) {
	o, ok := s.spec.Options[dimension]
	if !ok || o.Table == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoOptions, dimension)
	}

	rows, err := s.db.Query(ctx, buildOptions(o))
	if err != nil {
		return nil, fmt.Errorf("options %s: %w", dimension, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cascade.Option, error) {
		var opt cascade.Option
		var label, parent *string
		if err := row.Scan(&opt.ID, &label, &parent); err != nil {
			return opt, err
		}
		if label != nil {
			opt.Label = *label
		} else {
			opt.Label = opt.ID
		}
		if parent != nil {
			opt.ParentID = *parent
		}
		return opt, nil
	})
}

// DeleteMany removes every id in one statement.
func (s *Source) DeleteMany(ctx context.Context, ids []string) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, buildDelete(s.spec), ids)
		if err != nil {
			return fmt.Errorf("delete from %s: %w", s.spec.Table, err)
		}
		s.logger.Info("rows deleted",
			zap.String("table", s.spec.Table),
			zap.Int("requested", len(ids)),
			zap.Int64("deleted", tag.RowsAffected()))
		return nil
	})
}
