package config

import (
	"slices"

	"github.com/imgajeed76/gridsync/internal/access"
	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// TableProfile declares one remote table: where its rows, options and
// mutations live, and how it is displayed.
type TableProfile struct {
	Title string `toml:"title"`

	// REST backend
	Endpoint       string `toml:"endpoint"`
	DeleteEndpoint string `toml:"delete_endpoint,omitempty"`

	// Postgres backend
	Table         string   `toml:"table,omitempty"`
	SearchColumns []string `toml:"search_columns,omitempty"`

	IDField         string            `toml:"id_field"`
	PageSizes       []int             `toml:"page_sizes,omitempty"`
	DefaultPageSize int               `toml:"default_page_size,omitempty"`
	Columns         []ColumnProfile   `toml:"columns"`
	Filters         []FilterProfile   `toml:"filters,omitempty"`
	Actions         map[string]string `toml:"actions,omitempty"`
}

// ColumnProfile declares one column.
type ColumnProfile struct {
	ID        string `toml:"id"`
	Title     string `toml:"title"`
	Sortable  bool   `toml:"sortable,omitempty"`
	Hidden    bool   `toml:"hidden,omitempty"`
	VisibleIf string `toml:"visible_if,omitempty"`
}

// FilterProfile declares one filter dimension and where its options come
// from: a fixed list, an options endpoint, or an options table.
type FilterProfile struct {
	ID     string `toml:"id"`
	Title  string `toml:"title"`
	Parent string `toml:"parent,omitempty"`
	// Column is the row column the filter applies to; defaults to ID.
	Column string `toml:"column,omitempty"`

	Values          []OptionValue `toml:"values,omitempty"`
	OptionsEndpoint string        `toml:"options_endpoint,omitempty"`
	OptionsTable    string        `toml:"options_table,omitempty"`
	LabelField      string        `toml:"label_field,omitempty"`
	ParentField     string        `toml:"parent_field,omitempty"`
}

// OptionValue is a fixed filter option.
type OptionValue struct {
	ID    string `toml:"id"`
	Label string `toml:"label"`
}

// FilterColumn returns the row column filtered by f.
func (f FilterProfile) FilterColumn() string {
	if f.Column != "" {
		return f.Column
	}
	return f.ID
}

// Label returns the options label field, "name" by default.
func (f FilterProfile) Label() string {
	if f.LabelField != "" {
		return f.LabelField
	}
	return "name"
}

// ParentKey returns the options parent field, "parent_id" by default.
func (f FilterProfile) ParentKey() string {
	if f.ParentField != "" {
		return f.ParentField
	}
	return "parent_id"
}

// Static returns the fixed options of f, if it declares any.
func (f FilterProfile) Static() ([]cascade.Option, bool) {
	if len(f.Values) == 0 {
		return nil, false
	}
	out := make([]cascade.Option, len(f.Values))
	for i, v := range f.Values {
		out[i] = cascade.Option{ID: v.ID, Label: v.Label}
	}
	return out, true
}

// Filter returns the filter declared with id.
func (p *TableProfile) Filter(id string) (FilterProfile, bool) {
	for _, f := range p.Filters {
		if f.ID == id {
			return f, true
		}
	}
	return FilterProfile{}, false
}

// ID returns the row identity field, "id" by default.
func (p *TableProfile) ID() string {
	if p.IDField != "" {
		return p.IDField
	}
	return "id"
}

// Schema builds the view schema of the table. Page sizes fall back to core.
func (p *TableProfile) Schema(core CoreConfig) viewstate.Schema {
	sizes := p.PageSizes
	if len(sizes) == 0 {
		sizes = core.PageSizes
	}
	def := p.DefaultPageSize
	if def == 0 {
		def = core.DefaultPageSize
	}
	if !slices.Contains(sizes, def) && len(sizes) > 0 {
		def = sizes[0]
	}

	s := viewstate.Schema{
		PageSizes:       append([]int(nil), sizes...),
		DefaultPageSize: def,
	}
	for _, c := range p.Columns {
		s.Columns = append(s.Columns, viewstate.Column{
			ID:        c.ID,
			Title:     c.Title,
			Sortable:  c.Sortable,
			Hidden:    c.Hidden,
			VisibleIf: c.VisibleIf,
		})
	}
	for _, f := range p.Filters {
		s.Dimensions = append(s.Dimensions, viewstate.Dimension{
			ID:     f.ID,
			Title:  f.Title,
			Parent: f.Parent,
		})
	}
	return s
}

// Rules returns the capability rules of the table.
func (p *TableProfile) Rules() access.Rules {
	r := access.Rules{
		Columns: make(map[string]string),
		Actions: make(map[string]string, len(p.Actions)),
	}
	for _, c := range p.Columns {
		if c.VisibleIf != "" {
			r.Columns[c.ID] = c.VisibleIf
		}
	}
	for name, rule := range p.Actions {
		r.Actions[name] = rule
	}
	return r
}

// ═══════════════════════════════════════════════════════════════════════════
// Built-in profiles
// ═══════════════════════════════════════════════════════════════════════════

const (
	ruleITStaff = `admin || "it" in groups`
	ruleAdmin   = `admin`
)

var directionFilter = FilterProfile{
	ID:              "direction_id",
	Title:           "Direction",
	OptionsEndpoint: "/directions",
	OptionsTable:    "directions",
}

var departmentFilter = FilterProfile{
	ID:              "department_id",
	Title:           "Department",
	Parent:          "direction_id",
	OptionsEndpoint: "/departments",
	OptionsTable:    "departments",
	ParentField:     "direction_id",
}

// BuiltinTables returns the profiles of the asset backend's four screens.
func BuiltinTables() map[string]*TableProfile {
	return map[string]*TableProfile{
		"equipment": {
			Title:          "Equipment",
			Endpoint:       "/equipment",
			DeleteEndpoint: "/equipment/delete",
			Table:          "equipment",
			SearchColumns:  []string{"name", "inventory_number", "serial_number"},
			IDField:        "id",
			Columns: []ColumnProfile{
				{ID: "inventory_number", Title: "Inventory #", Sortable: true},
				{ID: "name", Title: "Name", Sortable: true},
				{ID: "serial_number", Title: "Serial", VisibleIf: ruleITStaff},
				{ID: "status", Title: "Status", Sortable: true},
				{ID: "department", Title: "Department"},
				{ID: "responsible", Title: "Responsible"},
				{ID: "updated_at", Title: "Updated", Sortable: true},
				{ID: "notes", Title: "Notes", Hidden: true},
			},
			Filters: []FilterProfile{
				{
					ID:    "status",
					Title: "Status",
					Values: []OptionValue{
						{ID: "in_use", Label: "In use"},
						{ID: "in_stock", Label: "In stock"},
						{ID: "repair", Label: "In repair"},
						{ID: "written_off", Label: "Written off"},
					},
				},
				directionFilter,
				departmentFilter,
			},
			Actions: map[string]string{"delete": ruleITStaff},
		},
		"requests": {
			Title:          "Requests",
			Endpoint:       "/requests",
			DeleteEndpoint: "/requests/delete",
			Table:          "requests",
			SearchColumns:  []string{"number", "title", "requester"},
			IDField:        "id",
			Columns: []ColumnProfile{
				{ID: "number", Title: "#", Sortable: true},
				{ID: "title", Title: "Title", Sortable: true},
				{ID: "status", Title: "Status", Sortable: true},
				{ID: "priority", Title: "Priority", Sortable: true},
				{ID: "requester", Title: "Requester"},
				{ID: "assignee", Title: "Assignee"},
				{ID: "created_at", Title: "Created", Sortable: true},
			},
			Filters: []FilterProfile{
				{
					ID:    "status",
					Title: "Status",
					Values: []OptionValue{
						{ID: "new", Label: "New"},
						{ID: "in_progress", Label: "In progress"},
						{ID: "done", Label: "Done"},
						{ID: "rejected", Label: "Rejected"},
					},
				},
				{
					ID:    "priority",
					Title: "Priority",
					Values: []OptionValue{
						{ID: "low", Label: "Low"},
						{ID: "normal", Label: "Normal"},
						{ID: "high", Label: "High"},
					},
				},
				{
					ID:              "group_id",
					Title:           "Group",
					OptionsEndpoint: "/groups/options",
					OptionsTable:    "groups",
				},
			},
			Actions: map[string]string{"delete": ruleAdmin},
		},
		"groups": {
			Title:          "Groups",
			Endpoint:       "/groups",
			DeleteEndpoint: "/groups/delete",
			Table:          "groups",
			SearchColumns:  []string{"name", "description"},
			IDField:        "id",
			Columns: []ColumnProfile{
				{ID: "name", Title: "Name", Sortable: true},
				{ID: "description", Title: "Description"},
				{ID: "members", Title: "Members", Sortable: true},
			},
			Actions: map[string]string{"delete": ruleAdmin},
		},
		"users": {
			Title:          "Users",
			Endpoint:       "/users",
			DeleteEndpoint: "/users/delete",
			Table:          "users",
			SearchColumns:  []string{"login", "full_name", "email"},
			IDField:        "id",
			Columns: []ColumnProfile{
				{ID: "login", Title: "Login", Sortable: true},
				{ID: "full_name", Title: "Name", Sortable: true},
				{ID: "email", Title: "Email", VisibleIf: ruleAdmin},
				{ID: "group", Title: "Group"},
				{ID: "role", Title: "Role", Sortable: true},
				{ID: "active", Title: "Active"},
			},
			Filters: []FilterProfile{
				{
					ID:              "group_id",
					Title:           "Group",
					OptionsEndpoint: "/groups/options",
					OptionsTable:    "groups",
				},
				{
					ID:    "role",
					Title: "Role",
					Values: []OptionValue{
						{ID: "user", Label: "User"},
						{ID: "technician", Label: "Technician"},
						{ID: "admin", Label: "Administrator"},
					},
				},
			},
			Actions: map[string]string{"delete": ruleAdmin},
		},
	}
}
