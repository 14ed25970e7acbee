package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/config"
	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/grid"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/util"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func TestMain(m *testing.M) {
	styles.SetNoColor(true)
	os.Exit(m.Run())
}

func equipmentCodec(t *testing.T) *viewstate.Codec {
	t.Helper()
	cfg := config.DefaultConfig()
	p, err := cfg.Table("equipment")
	require.NoError(t, err)
	codec, err := viewstate.NewCodec(p.Schema(cfg.Core))
	require.NoError(t, err)
	return codec
}

func viewCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addViewFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

// run executes the command tree against a config file in a temp dir.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", cfgPath))
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// ═══════════════════════════════════════════════════════════════════════════
// View flags
// ═══════════════════════════════════════════════════════════════════════════

func TestViewQuery(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"defaults", nil, ""},
		{"page is one based", []string{"--page", "3"}, "page=2"},
		{"sort ascending", []string{"--sort", "name"}, "sortColumn=name&sortDirection=asc"},
		{"sort descending", []string{"--sort", "name:DESC"}, "sortColumn=name&sortDirection=desc"},
		{"filters merge", []string{"--filter", "status=repair,in_use", "--filter", "direction_id=D1"}, "direction_id=D1&status=in_use,repair"},
		{"empty filter clears view", []string{"--view", "status=repair", "--filter", "status="}, ""},
		{"flags override view", []string{"--view", "page=4&search=pump", "--search", "drill"}, "page=4&search=drill"},
		{"show hidden column", []string{"--show", "notes"}, "hidden="},
		{"hide column", []string{"--hide", "status"}, "hidden=notes,status"},
		{"default page size is omitted", []string{"--page-size", "10"}, ""},
		{"malformed view falls back", []string{"--view", "pageSize=999&page=-4&sortColumn=notes"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := viewQuery(viewCmd(t, tt.args...), equipmentCodec(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewQueryRejectsBadFlags(t *testing.T) {
	tests := [][]string{
		{"--page", "0"},
		{"--page-size", "7"},
		{"--sort", "notes"},
		{"--sort", "name:sideways"},
		{"--filter", "colour=red"},
		{"--filter", "status"},
		{"--hide", "nope"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := viewQuery(viewCmd(t, args...), equipmentCodec(t))
			assert.ErrorIs(t, err, util.ErrInvalidView)
		})
	}
}

func TestStartQueryPrefersFlagsOverStoredView(t *testing.T) {
	views, err := config.OpenViews(filepath.Join(t.TempDir(), "views.toml"))
	require.NoError(t, err)
	require.NoError(t, views.Writer("equipment").Replace("search=pump"))
	codec := equipmentCodec(t)

	q, err := startQuery(viewCmd(t), codec, views, "equipment", true)
	require.NoError(t, err)
	assert.Equal(t, "search=pump", q)

	q, err = startQuery(viewCmd(t, "--page", "2"), codec, views, "equipment", true)
	require.NoError(t, err)
	assert.Equal(t, "page=1", q)

	q, err = startQuery(viewCmd(t), codec, views, "equipment", false)
	require.NoError(t, err)
	assert.Equal(t, "", q)
}

// ═══════════════════════════════════════════════════════════════════════════
// awaitPage
// ═══════════════════════════════════════════════════════════════════════════

func newTestController(t *testing.T, fetcher fetch.FetcherFunc[record.Record]) *grid.Controller[record.Record] {
	t.Helper()
	ctrl, err := grid.New(grid.Config[record.Record]{
		Schema: viewstate.Schema{
			PageSizes:       []int{10, 20},
			DefaultPageSize: 10,
			Columns:         []viewstate.Column{{ID: "name", Title: "Name", Sortable: true}},
		},
		Fetcher: fetcher,
		RowID:   record.IDFunc("id"),
	})
	require.NoError(t, err)
	return ctrl
}

func TestAwaitPageReturnsLoadedPage(t *testing.T) {
	ctrl := newTestController(t, func(ctx context.Context, req viewstate.Request) (fetch.Page[record.Record], error) {
		time.Sleep(10 * time.Millisecond)
		return fetch.Page[record.Record]{
			Rows:  []record.Record{{"id": "1", "name": "Pump"}, {"id": "2", "name": "Drill"}},
			Total: 12,
		}, nil
	})
	ctx := context.Background()
	require.NoError(t, ctrl.Mount(ctx, "page=1"))
	defer ctrl.Unmount()

	snap, err := awaitPage(ctx, ctrl)
	require.NoError(t, err)
	assert.Len(t, snap.Result.Rows, 2)
	assert.Equal(t, 12, snap.Result.Total)
	assert.Equal(t, 1, snap.State.PageIndex)
	assert.Equal(t, 2, snap.PageCount)
}

func TestAwaitPageReturnsFetchError(t *testing.T) {
	boom := errors.New("backend down")
	ctrl := newTestController(t, func(ctx context.Context, req viewstate.Request) (fetch.Page[record.Record], error) {
		return fetch.Page[record.Record]{}, boom
	})
	ctx := context.Background()
	require.NoError(t, ctrl.Mount(ctx, ""))
	defer ctrl.Unmount()

	_, err := awaitPage(ctx, ctrl)
	assert.ErrorIs(t, err, boom)
}

func TestAwaitPageHonoursCancel(t *testing.T) {
	release := make(chan struct{})
	ctrl := newTestController(t, func(ctx context.Context, req viewstate.Request) (fetch.Page[record.Record], error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return fetch.Page[record.Record]{}, ctx.Err()
	})
	require.NoError(t, ctrl.Mount(context.Background(), ""))
	defer ctrl.Unmount()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := awaitPage(ctx, ctrl)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ═══════════════════════════════════════════════════════════════════════════
// Backend mapping
// ═══════════════════════════════════════════════════════════════════════════

func TestTableSpecFromProfile(t *testing.T) {
	p, err := config.DefaultConfig().Table("equipment")
	require.NoError(t, err)

	spec := tableSpec("equipment", p)
	assert.Equal(t, "equipment", spec.Table)
	assert.Equal(t, "id", spec.IDColumn)
	assert.Equal(t, []string{"inventory_number", "name", "status", "updated_at"}, spec.SortColumns)
	assert.Equal(t, "status", spec.Filters["status"])
	assert.NotContains(t, spec.Options, "status", "fixed values are served from the profile")
	assert.Equal(t, "departments", spec.Options["department_id"].Table)
	assert.Equal(t, "direction_id", spec.Options["department_id"].ParentColumn)
	assert.Equal(t, "", spec.Options["direction_id"].ParentColumn)
}

func TestResourceSpecFromProfile(t *testing.T) {
	p, err := config.DefaultConfig().Table("users")
	require.NoError(t, err)

	spec := resourceSpec(p)
	assert.Equal(t, "/users", spec.Endpoint)
	assert.Equal(t, "/users/delete", spec.DeleteEndpoint)
	assert.Equal(t, "/groups/options", spec.Options["group_id"].Path)
	assert.NotContains(t, spec.Options, "role")
}

func TestProfileOptionsPrefersStaticValues(t *testing.T) {
	p, err := config.DefaultConfig().Table("equipment")
	require.NoError(t, err)

	var asked []string
	opts := profileOptions{profile: p, next: grid.OptionsSourceFunc(func(ctx context.Context, dim string) ([]cascade.Option, error) {
		asked = append(asked, dim)
		return nil, nil
	})}

	status, err := opts.Options(context.Background(), "status")
	require.NoError(t, err)
	assert.Len(t, status, 4)
	_, err = opts.Options(context.Background(), "direction_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"direction_id"}, asked)
}

// ═══════════════════════════════════════════════════════════════════════════
// Commands
// ═══════════════════════════════════════════════════════════════════════════

func TestURLCommand(t *testing.T) {
	cfgPath := writeConfig(t, `
[api]
base_url = "http://assets.local/api"
`)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(cfgPath), "views.toml"), []byte(`
[views]
equipment = "search=pump"
`), 0644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"canonical", []string{"url", "equipment", "--sort", "name:desc", "--page", "3"}, "page=2&sortColumn=name&sortDirection=desc\n"},
		{"normalizes a link", []string{"url", "equipment", "--view", "pageSize=999&page=-4"}, "\n"},
		{"full link", []string{"url", "equipment", "--full", "--filter", "status=repair"}, "http://assets.local/api/equipment?status=repair\n"},
		{"full default view", []string{"url", "groups", "--full"}, "http://assets.local/api/groups\n"},
		{"stored view", []string{"url", "equipment", "--stored", "--page", "2"}, "page=1&search=pump\n"},
		{"nothing stored", []string{"url", "users", "--stored"}, "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, cfgPath, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	_, err := run(t, cfgPath, "url", "wards")
	assert.ErrorIs(t, err, util.ErrUnknownTable)
}

func TestConfigCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	out, err := run(t, cfgPath, "config", "api.timeout", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "api.timeout = 30")

	out, err = run(t, cfgPath, "config", "api.timeout")
	require.NoError(t, err)
	assert.Equal(t, "30\n", out)

	_, err = run(t, cfgPath, "config", "api.base_url")
	assert.ErrorIs(t, err, util.ErrConfigKeyNotSet, "unset keys are reported")

	_, err = run(t, cfgPath, "config", "api.colour", "red")
	assert.ErrorIs(t, err, util.ErrConfigKeyNotSet)

	_, err = run(t, cfgPath, "config", "api.timeout", "9000")
	assert.ErrorContains(t, err, "exceeds maximum")

	require.NoError(t, func() error { _, err := run(t, cfgPath, "config", "api.token", "s3cret"); return err }())
	out, err = run(t, cfgPath, "config", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "api.timeout=30\n")
	assert.Contains(t, out, "api.token=********\n")
	assert.NotContains(t, out, "s3cret")

	out, err = run(t, cfgPath, "config", "--path")
	require.NoError(t, err)
	assert.Equal(t, cfgPath+"\n", out)
}

func TestTablesCommand(t *testing.T) {
	cfgPath := writeConfig(t, `
[tables.rooms]
title = "Rooms"
endpoint = "/rooms"

  [[tables.rooms.columns]]
  id = "name"
  title = "Name"
`)

	out, err := run(t, cfgPath, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "equipment")
	assert.Contains(t, out, "/rooms")
	assert.Contains(t, out, "status direction_id department_id<direction_id")

	out, err = run(t, cfgPath, "tables", "--json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 5)
	assert.Equal(t, "groups", rows[1]["name"])
}

func TestListWithoutBackend(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	_, err := run(t, cfgPath, "list", "equipment")
	assert.ErrorIs(t, err, util.ErrNoBackend)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	_, err := run(t, cfgPath, "export", "equipment", "--out", "rows.pdf")
	assert.ErrorIs(t, err, util.ErrUnknownFormat)
}
