package db

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// TableSpec describes how a table view maps onto a relational table. Only
// columns named here ever reach generated SQL.
type TableSpec struct {
	Table         string
	IDColumn      string
	Columns       []string
	SortColumns   []string
	SearchColumns []string
	// Filters maps a dimension id to the column it filters.
	Filters map[string]string
	Options map[string]OptionsSpec
}

// OptionsSpec locates a dimension's catalog table.
type OptionsSpec struct {
	Table        string
	IDColumn     string
	LabelColumn  string
	ParentColumn string
}

func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// tableIdent splits a schema-qualified name.
func tableIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// escapeLike escapes the ILIKE wildcards of s.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// pageQuery is the SQL of one page request.
type pageQuery struct {
	Count string
	Rows  string
	Args  []any
	// RowArgs extends Args with LIMIT and OFFSET.
	RowArgs []any
}

func buildWhere(spec TableSpec, req viewstate.Request) (string, []any) {
	var clauses []string
	var args []any

	dims := make([]string, 0, len(req.Filters))
	for dim := range req.Filters {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	for _, dim := range dims {
		col, ok := spec.Filters[dim]
		if !ok {
			continue
		}
		values := req.Filters[dim]
		if len(values) == 0 {
			continue
		}
		args = append(args, values)
		clauses = append(clauses, fmt.Sprintf("%s::text = ANY($%d)", ident(col), len(args)))
	}

	if req.Search != "" && len(spec.SearchColumns) > 0 {
		args = append(args, "%"+escapeLike(req.Search)+"%")
		or := make([]string, len(spec.SearchColumns))
		for i, col := range spec.SearchColumns {
			or[i] = fmt.Sprintf("%s::text ILIKE $%d", ident(col), len(args))
		}
		clauses = append(clauses, "("+strings.Join(or, " OR ")+")")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildOrder(spec TableSpec, req viewstate.Request) string {
	var terms []string
	if req.SortColumn != "" {
		for _, c := range spec.SortColumns {
			if c == req.SortColumn {
				dir := "ASC"
				if req.SortDirection == viewstate.DirectionDesc {
					dir = "DESC"
				}
				terms = append(terms, ident(c)+" "+dir+" NULLS LAST")
				break
			}
		}
	}
	// The id keeps pagination stable between equal sort keys.
	terms = append(terms, ident(spec.IDColumn))
	return " ORDER BY " + strings.Join(terms, ", ")
}

// pageOffset is the row offset of req. Postgres takes a bigint OFFSET, so
// anything past int64 is rejected instead of wrapping.
func pageOffset(req viewstate.Request) (int64, error) {
	if req.PageIndex < 0 || req.PageSize <= 0 {
		return 0, nil
	}
	if int64(req.PageIndex) > math.MaxInt64/int64(req.PageSize) {
		return 0, fmt.Errorf("%w: page %d of size %d", ErrPageOutOfRange, req.PageIndex, req.PageSize)
	}
	return int64(req.PageIndex) * int64(req.PageSize), nil
}

func buildPage(spec TableSpec, req viewstate.Request) (pageQuery, error) {
	offset, err := pageOffset(req)
	if err != nil {
		return pageQuery{}, err
	}
	table := tableIdent(spec.Table)
	where, args := buildWhere(spec, req)

	cols := make([]string, 0, len(spec.Columns)+1)
	cols = append(cols, ident(spec.IDColumn))
	for _, c := range spec.Columns {
		if c != spec.IDColumn {
			cols = append(cols, ident(c))
		}
	}

	rowArgs := append(append([]any(nil), args...), req.PageSize, offset)
	return pageQuery{
		Count: "SELECT COUNT(*) FROM " + table + where,
		Rows: fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT $%d OFFSET $%d",
			strings.Join(cols, ", "), table, where, buildOrder(spec, req),
			len(args)+1, len(args)+2),
		Args:    args,
		RowArgs: rowArgs,
	}, nil
}

func buildOptions(o OptionsSpec) string {
	id := o.IDColumn
	if id == "" {
		id = "id"
	}
	label := o.LabelColumn
	if label == "" {
		label = "name"
	}
	parent := "NULL::text"
	if o.ParentColumn != "" {
		parent = ident(o.ParentColumn) + "::text"
	}
	// A NULL label falls back to the id.
	return fmt.Sprintf("SELECT %s::text, COALESCE(%s::text, %s::text), %s FROM %s ORDER BY %s",
		ident(id), ident(label), ident(id), parent, tableIdent(o.Table), ident(label))
}

func buildDelete(spec TableSpec) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s::text = ANY($1)", tableIdent(spec.Table), ident(spec.IDColumn))
}
