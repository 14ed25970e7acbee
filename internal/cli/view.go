package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/grid"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/util"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// addViewFlags registers the flags that describe a table view.
func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().String("view", "", "Start from a query string (e.g. 'page=2&status=in_use')")
	cmd.Flags().Int("page", 0, "Page number, starting at 1")
	cmd.Flags().Int("page-size", 0, "Rows per page")
	cmd.Flags().String("sort", "", "Sort column, optionally with :desc (e.g. name:desc)")
	cmd.Flags().String("search", "", "Free-text search")
	cmd.Flags().StringArray("filter", nil, "Filter as dimension=value[,value] (repeatable)")
	cmd.Flags().StringSlice("hide", nil, "Columns to hide")
	cmd.Flags().StringSlice("show", nil, "Hidden-by-default columns to show")
}

// viewQuery turns the view flags into a canonical query string. Unknown
// columns and dimensions are rejected here; the codec itself would drop
// them silently.
func viewQuery(cmd *cobra.Command, codec *viewstate.Codec) (string, error) {
	schema := codec.Schema()
	flags := cmd.Flags()

	raw, _ := flags.GetString("view")
	st := codec.Decode(raw)

	if flags.Changed("page") {
		n, _ := flags.GetInt("page")
		if n < 1 {
			return "", util.InvalidViewError("page", strconv.Itoa(n), "--page 1")
		}
		st.PageIndex = n - 1
	}

	if flags.Changed("page-size") {
		n, _ := flags.GetInt("page-size")
		if !schema.AllowsPageSize(n) {
			return "", util.InvalidViewError("page-size", strconv.Itoa(n),
				fmt.Sprintf("--page-size %d", schema.DefaultPageSize)).
				WithMessage("Allowed page sizes: " + joinInts(schema.PageSizes))
		}
		st.PageSize = n
	}

	if flags.Changed("sort") {
		v, _ := flags.GetString("sort")
		column, dir, _ := strings.Cut(v, ":")
		col, ok := schema.Column(column)
		if !ok || !col.Sortable {
			return "", util.InvalidViewError("sort", v, "--sort name:desc").
				WithMessage("Sortable columns: " + strings.Join(sortableColumns(schema), ", "))
		}
		switch strings.ToLower(dir) {
		case "", viewstate.DirectionAsc:
			st.Sort = &viewstate.Sort{Column: column}
		case viewstate.DirectionDesc:
			st.Sort = &viewstate.Sort{Column: column, Desc: true}
		default:
			return "", util.InvalidViewError("sort", v, "--sort "+column+":desc")
		}
	}

	if flags.Changed("search") {
		st.Search, _ = flags.GetString("search")
	}

	filters, _ := flags.GetStringArray("filter")
	for _, f := range filters {
		dim, values, ok := strings.Cut(f, "=")
		if _, known := schema.Dimension(dim); !ok || !known {
			return "", util.InvalidViewError("filter", f, "--filter status=in_use,repair").
				WithMessage("Filter dimensions: " + strings.Join(dimensionIDs(schema), ", "))
		}
		set := make(viewstate.Set)
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				set.Add(v)
			}
		}
		if len(set) == 0 {
			delete(st.Filters, dim)
		} else {
			st.Filters[dim] = set
		}
	}

	for _, name := range []string{"hide", "show"} {
		ids, _ := flags.GetStringSlice(name)
		for _, id := range ids {
			if _, ok := schema.Column(id); !ok {
				return "", util.InvalidViewError(name, id, "")
			}
			if name == "hide" {
				st.Hidden.Add(id)
			} else {
				st.Hidden.Remove(id)
			}
		}
	}

	return codec.Encode(schema.Clamp(st)), nil
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

func sortableColumns(s viewstate.Schema) []string {
	var out []string
	for _, c := range s.Columns {
		if c.Sortable {
			out = append(out, c.ID)
		}
	}
	return out
}

func dimensionIDs(s viewstate.Schema) []string {
	out := make([]string, len(s.Dimensions))
	for i, d := range s.Dimensions {
		out[i] = d.ID
	}
	return out
}

// awaitPage blocks until the page of the controller's current state has
// loaded or failed.
func awaitPage(ctx context.Context, ctrl *grid.Controller[record.Record]) (grid.Snapshot[record.Record], error) {
	changed := make(chan struct{}, 1)
	stop := ctrl.Subscribe(func(grid.Snapshot[record.Record]) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer stop()

	for {
		snap := ctrl.Snapshot()
		key := ctrl.Codec().Request(snap.State).Key()
		res := snap.Result
		switch {
		case res.Status == fetch.StatusSuccess && res.Shown.Key() == key:
			return snap, nil
		case res.Status == fetch.StatusError && res.Pending.Key() == key:
			return snap, res.Err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}
