package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store reads schedule definitions from a directory of YAML files.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the definitions directory.
func (s *Store) Dir() string { return s.dir }

// Load returns the definition with the given id. Every call rereads the
// directory so edits are picked up by the next reload.
func (s *Store) Load(id string) (*Definition, error) {
	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("read schedules dir: %w", err)
	}

	var found *Definition
	parseErrors := s.iterate(func(_ string, d *Definition) bool {
		if d.ID == id {
			found = d
			return true
		}
		return false
	})
	if found != nil {
		return found, nil
	}
	if len(parseErrors) > 0 {
		return nil, fmt.Errorf("task schedule %s not found; %d file(s) had parse errors (first: %v)", id, len(parseErrors), parseErrors[0])
	}
	return nil, &NotFoundError{ID: id}
}

// List returns all schedule ids, sorted. Unparseable files are skipped and
// reported in the error while the list is still returned.
func (s *Store) List() ([]string, error) {
	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read schedules dir: %w", err)
	}

	ids := []string{}
	parseErrors := s.iterate(func(_ string, d *Definition) bool {
		ids = append(ids, d.ID)
		return false
	})
	sort.Strings(ids)

	if len(parseErrors) > 0 {
		return ids, fmt.Errorf("%d schedule file(s) had parse errors (first: %v)", len(parseErrors), parseErrors[0])
	}
	return ids, nil
}

// Path returns the file holding the definition for id.
func (s *Store) Path(id string) (string, error) {
	var found string
	s.iterate(func(path string, d *Definition) bool {
		if d.ID == id {
			found = path
			return true
		}
		return false
	})
	if found == "" {
		return "", &NotFoundError{ID: id}
	}
	return found, nil
}

// Save writes d to <dir>/<id>.yaml.
func (s *Store) Save(d *Definition) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create schedules dir: %w", err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, d.ID+".yaml"), data, 0644); err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}

// iterate parses every YAML file and calls fn for each valid definition;
// fn returns true to stop early.
func (s *Store) iterate(fn func(path string, d *Definition) bool) []*ParseError {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var parseErrors []*ParseError
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(s.dir, name)
		d, err := loadFromPath(path)
		if err != nil {
			parseErrors = append(parseErrors, &ParseError{File: name, Err: err})
			continue
		}
		if fn(path, d) {
			return parseErrors
		}
	}
	return parseErrors
}

func loadFromPath(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	return &d, nil
}
