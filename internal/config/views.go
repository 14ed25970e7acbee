package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// ViewStore remembers the last query string of every table in views.toml.
// Each write replaces the table's entry; there is no history.
type ViewStore struct {
	path string

	mu    sync.Mutex
	views map[string]string
}

type viewsFile struct {
	Views map[string]string `toml:"views"`
}

// ViewsPath returns the default views.toml location next to the config file.
func ViewsPath() string {
	return filepath.Join(filepath.Dir(Path()), "views.toml")
}

// OpenViews loads the store at path. A missing file is an empty store.
func OpenViews(path string) (*ViewStore, error) {
	s := &ViewStore{path: path, views: make(map[string]string)}

	var f viewsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	for k, v := range f.Views {
		s.views[k] = v
	}
	return s, nil
}

// Get returns the stored query of table.
func (s *ViewStore) Get(table string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.views[table]
	return q, ok
}

// Put replaces the stored query of table and writes the file.
func (s *ViewStore) Put(table, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.views[table]; ok && cur == query {
		return nil
	}
	s.views[table] = query
	return s.saveLocked()
}

// Writer returns a URL writer bound to one table.
func (s *ViewStore) Writer(table string) *TableView {
	return &TableView{store: s, table: table}
}

func (s *ViewStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(viewsFile{Views: s.views}); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// TableView is the query-string sink of one table.
type TableView struct {
	store *ViewStore
	table string
}

// Replace stores query as the table's current view.
func (v *TableView) Replace(query string) error {
	return v.store.Put(v.table, query)
}
