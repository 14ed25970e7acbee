package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgajeed76/gridsync/internal/access"
	"github.com/imgajeed76/gridsync/internal/util"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Core.DefaultPageSize)
	assert.Equal(t, []int{10, 20, 50, 100}, cfg.Core.PageSizes)
	assert.Equal(t, []string{"equipment", "groups", "requests", "users"}, cfg.TableNames())
}

func TestLoadMergesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
base_url = "http://assets.local/api"

[session]
user_id = "u-17"
groups = ["it"]

[tables.rooms]
title = "Rooms"
endpoint = "/rooms"

  [[tables.rooms.columns]]
  id = "name"
  title = "Name"
  sortable = true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://assets.local/api", cfg.API.BaseURL)
	assert.Equal(t, 15, cfg.API.Timeout, "unset values keep defaults")
	assert.Contains(t, cfg.TableNames(), "rooms")
	assert.Contains(t, cfg.TableNames(), "equipment")
	assert.Equal(t, access.Capabilities{UserID: "u-17", Groups: []string{"it"}}, cfg.Session.Capabilities())

	rooms, err := cfg.Table("rooms")
	require.NoError(t, err)
	assert.Equal(t, "id", rooms.ID())

	_, err = cfg.Table("wards")
	assert.ErrorIs(t, err, util.ErrUnknownTable)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	require.NoError(t, cfg.SetValue("api.base_url", "http://x"))
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://x", loaded.API.BaseURL)
	assert.Equal(t, len(cfg.Tables), len(loaded.Tables))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "[tables.equipment]", "unchanged built-ins are not written")
}

func TestGetSetValue(t *testing.T) {
	cfg := DefaultConfig()

	v, ok := cfg.GetValue("core.default_page_size")
	require.True(t, ok)
	assert.Equal(t, "10", v)

	require.NoError(t, cfg.SetValue("session.admin", "true"))
	assert.True(t, cfg.Session.Admin)
	v, _ = cfg.GetValue("session.admin")
	assert.Equal(t, "true", v)

	tests := []struct {
		key, value, wantErr string
	}{
		{"api.timeout", "0", "below minimum"},
		{"api.timeout", "601", "exceeds maximum"},
		{"api.timeout", "soon", "invalid integer"},
		{"session.admin", "maybe", "invalid boolean"},
		{"api.nope", "1", "unknown config key"},
		{"nope", "1", "unknown config key"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			assert.ErrorContains(t, cfg.SetValue(tt.key, tt.value), tt.wantErr)
		})
	}

	_, ok = cfg.GetValue("core.page_sizes")
	assert.False(t, ok, "lists are not scalar keys")
}

func TestListKeysAndHelp(t *testing.T) {
	keys := ListKeys()
	assert.Contains(t, keys, "api.base_url")
	assert.Contains(t, keys, "database.url")
	assert.NotContains(t, keys, "session.groups")
	assert.IsIncreasing(t, keys)

	help := HelpText()
	assert.Contains(t, help, "REST backend:")
	assert.Contains(t, help, "(default: 15)")
}

func TestBuiltinSchemasAreValid(t *testing.T) {
	cfg := DefaultConfig()
	for _, name := range cfg.TableNames() {
		t.Run(name, func(t *testing.T) {
			p, err := cfg.Table(name)
			require.NoError(t, err)
			schema := p.Schema(cfg.Core)
			require.NoError(t, schema.Validate())

			_, err = access.NewGate(p.Rules(), access.Capabilities{})
			require.NoError(t, err)
		})
	}
}

func TestTableSchemaFallbacks(t *testing.T) {
	p := &TableProfile{
		PageSizes:       []int{25, 50},
		DefaultPageSize: 10,
		Columns:         []ColumnProfile{{ID: "name", Sortable: true}},
		Filters: []FilterProfile{
			{ID: "ward"},
			{ID: "room", Parent: "ward", Column: "room_id"},
		},
	}
	s := p.Schema(CoreConfig{DefaultPageSize: 10, PageSizes: []int{10}})
	assert.Equal(t, 25, s.DefaultPageSize)
	assert.Equal(t, []viewstate.Dimension{{ID: "ward"}, {ID: "room", Parent: "ward"}}, s.Dimensions)

	f, ok := p.Filter("room")
	require.True(t, ok)
	assert.Equal(t, "room_id", f.FilterColumn())
	assert.Equal(t, "name", f.Label())
	assert.Equal(t, "parent_id", f.ParentKey())

	_, ok = f.Static()
	assert.False(t, ok)
}

func TestViewStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.toml")

	store, err := OpenViews(path)
	require.NoError(t, err)
	_, ok := store.Get("equipment")
	assert.False(t, ok)

	w := store.Writer("equipment")
	require.NoError(t, w.Replace("page=1"))
	require.NoError(t, w.Replace("page=2&search=pump"))
	require.NoError(t, store.Writer("users").Replace(""))

	reopened, err := OpenViews(path)
	require.NoError(t, err)
	q, ok := reopened.Get("equipment")
	require.True(t, ok)
	assert.Equal(t, "page=2&search=pump", q)
	q, ok = reopened.Get("users")
	require.True(t, ok)
	assert.Equal(t, "", q)
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom/gridsync.toml")
	assert.Equal(t, "/tmp/custom/gridsync.toml", Path())
	assert.Equal(t, "/tmp/custom/views.toml", ViewsPath())
}
