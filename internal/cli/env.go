package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imgajeed76/gridsync/internal/access"
	"github.com/imgajeed76/gridsync/internal/api"
	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/config"
	"github.com/imgajeed76/gridsync/internal/db"
	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/grid"
	"github.com/imgajeed76/gridsync/internal/logging"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/ui/styles"
	"github.com/imgajeed76/gridsync/internal/util"
)

func configHint() string {
	return filepath.Join("$XDG_CONFIG_HOME", "gridsync", "config.toml")
}

// environment is what every table command needs: config, logger and the
// path the config came from.
type environment struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
}

// loadEnv reads the config and builds the logger. Interactive commands log
// to a file so log lines do not tear the screen.
func loadEnv(cmd *cobra.Command, interactive bool) (*environment, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.UI.NoColor {
		styles.SetNoColor(true)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	opts := logging.Options{Verbose: verbose, Quiet: !verbose}
	if interactive {
		opts.File = cfg.UI.LogFile
		if opts.File == "" {
			opts.File = filepath.Join(config.Dir(), "gridsync.log")
		}
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, cfgPath: path, logger: logger}, nil
}

// viewsPath keeps views.toml next to whichever config file is in use.
func viewsPath(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), "views.toml")
}

func (e *environment) Close() {
	_ = e.logger.Sync()
}

// ═══════════════════════════════════════════════════════════════════════════
// Backends
// ═══════════════════════════════════════════════════════════════════════════

// backend serves the fetch, options and delete contracts of one table.
type backend interface {
	fetch.Fetcher[record.Record]
	grid.OptionsSource
	grid.Mutator
}

// tableSession is one opened table: its profile, backend and access gate.
type tableSession struct {
	name    string
	profile *config.TableProfile
	backend backend
	gate    *access.Gate
	canDel  bool
	shareTo string
	close   func()
}

func (s *tableSession) Close() {
	if s.close != nil {
		s.close()
	}
}

// openTable resolves name to a profile and connects its backend. A
// configured database URL wins over the REST backend.
func (e *environment) openTable(ctx context.Context, name string) (*tableSession, error) {
	profile, err := e.cfg.Table(name)
	if err != nil {
		return nil, err
	}

	gate, err := access.NewGate(profile.Rules(), e.cfg.Session.Capabilities())
	if err != nil {
		return nil, util.NewError("Invalid capability rule").
			WithContext("table " + name).
			Wrap(err)
	}

	s := &tableSession{name: name, profile: profile, gate: gate}

	switch {
	case e.cfg.Database.URL != "":
		conn, err := db.Connect(ctx, db.Options{
			URL:              e.cfg.Database.URL,
			MaxConns:         e.cfg.Database.MaxConns,
			StatementTimeout: time.Duration(e.cfg.Database.StatementTimeout) * time.Second,
			Logger:           e.logger.Named("db"),
		})
		if err != nil {
			return nil, util.DatabaseConnectionError(e.cfg.Database.URL, err)
		}
		src, err := db.NewSource(conn, tableSpec(name, profile), e.logger.Named("db"))
		if err != nil {
			conn.Close()
			return nil, err
		}
		s.backend = src
		s.canDel = true
		s.close = conn.Close

	case e.cfg.API.BaseURL != "":
		client, err := api.NewClient(api.Config{
			BaseURL: e.cfg.API.BaseURL,
			Token:   e.cfg.API.Token,
			Timeout: time.Duration(e.cfg.API.Timeout) * time.Second,
			Logger:  e.logger.Named("api"),
		})
		if err != nil {
			return nil, util.APIError(e.cfg.API.BaseURL, err)
		}
		s.backend = client.Resource(resourceSpec(profile))
		s.canDel = profile.DeleteEndpoint != ""
		s.shareTo = client.BaseURL() + profile.Endpoint

	default:
		return nil, util.NoBackendError()
	}
	return s, nil
}

// tableSpec maps a profile onto the Postgres adapter's table description.
func tableSpec(name string, p *config.TableProfile) db.TableSpec {
	spec := db.TableSpec{
		Table:         p.Table,
		IDColumn:      p.ID(),
		SearchColumns: p.SearchColumns,
		Filters:       make(map[string]string, len(p.Filters)),
		Options:       make(map[string]db.OptionsSpec),
	}
	if spec.Table == "" {
		spec.Table = name
	}
	for _, c := range p.Columns {
		spec.Columns = append(spec.Columns, c.ID)
		if c.Sortable {
			spec.SortColumns = append(spec.SortColumns, c.ID)
		}
	}
	for _, f := range p.Filters {
		spec.Filters[f.ID] = f.FilterColumn()
		if f.OptionsTable == "" {
			continue
		}
		o := db.OptionsSpec{Table: f.OptionsTable, LabelColumn: f.Label()}
		if f.Parent != "" {
			o.ParentColumn = f.ParentKey()
		}
		spec.Options[f.ID] = o
	}
	return spec
}

// resourceSpec maps a profile onto the REST adapter's endpoints.
func resourceSpec(p *config.TableProfile) api.ResourceSpec {
	spec := api.ResourceSpec{
		Endpoint:       p.Endpoint,
		DeleteEndpoint: p.DeleteEndpoint,
		Options:        make(map[string]api.OptionsEndpoint),
	}
	for _, f := range p.Filters {
		if f.OptionsEndpoint == "" {
			continue
		}
		spec.Options[f.ID] = api.OptionsEndpoint{
			Path:        f.OptionsEndpoint,
			LabelField:  f.Label(),
			ParentField: f.ParentKey(),
		}
	}
	return spec
}

// profileOptions answers fixed option lists from the profile and asks the
// backend for everything else.
type profileOptions struct {
	profile *config.TableProfile
	next    grid.OptionsSource
}

func (o profileOptions) Options(ctx context.Context, dimension string) ([]cascade.Option, error) {
	if f, ok := o.profile.Filter(dimension); ok {
		if opts, ok := f.Static(); ok {
			return opts, nil
		}
	}
	return o.next.Options(ctx, dimension)
}

// controller wires a grid controller for the session. url may be nil.
func (s *tableSession) controller(e *environment, url grid.URLWriter) (*grid.Controller[record.Record], error) {
	cfg := grid.Config[record.Record]{
		Schema:  s.profile.Schema(e.cfg.Core),
		Fetcher: s.backend,
		RowID:   record.IDFunc(s.profile.ID()),
		Options: profileOptions{profile: s.profile, next: s.backend},
		URL:     url,
		Gate:    s.gate,
		Logger:  e.logger.Named("grid").With(zap.String("table", s.name)),
	}
	if s.canDel {
		cfg.Mutator = s.backend
	}
	return grid.New(cfg)
}

func (s *tableSession) title() string {
	if s.profile.Title != "" {
		return s.profile.Title
	}
	return s.name
}
