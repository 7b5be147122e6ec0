// Package schema holds the external table registry: for each logical
// warehouse table, which columns are persisted, which columns form the
// business key, and which columns carry dates in what source format.
//
// The registry is loaded once at process start from a YAML file and never
// mutated afterwards. The ingest pipeline consumes it; it does not own it.
package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Table describes one logical warehouse table.
type Table struct {
	// Name is the logical table name, also the filename token that
	// identifies which export files belong to it.
	Name string `yaml:"name"`

	// Keys are the business-key columns used to detect "same record"
	// across exports. Empty means no dedup key: every load appends.
	Keys []string `yaml:"keys,omitempty"`

	// Columns are the persisted columns. Empty means persist every column
	// the export carries.
	Columns []string `yaml:"columns,omitempty"`

	// DateColumns, IntegerColumns and FloatColumns declare the typed
	// conversion plan for ingestion. Undeclared columns stay text.
	DateColumns    []string `yaml:"dateColumns,omitempty"`
	IntegerColumns []string `yaml:"integerColumns,omitempty"`
	FloatColumns   []string `yaml:"floatColumns,omitempty"`

	// DateLayout is the Go layout used when a date-range filter re-parses
	// this table's date columns. Empty means the canonical ddmmyyyy form.
	DateLayout string `yaml:"dateLayout,omitempty"`
}

// Keyed reports whether the table has a business key.
func (t Table) Keyed() bool { return len(t.Keys) > 0 }

// Registry is the immutable set of known tables.
type Registry struct {
	tables map[string]Table
	names  []string
}

type registryFile struct {
	Tables []Table `yaml:"tables"`
}

// Load reads the registry from a YAML file and validates it.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	r := &Registry{tables: make(map[string]Table, len(file.Tables))}
	for _, t := range file.Tables {
		if err := validateTable(t); err != nil {
			return nil, err
		}
		if _, exists := r.tables[t.Name]; exists {
			return nil, fmt.Errorf("duplicate table %q in registry", t.Name)
		}
		r.tables[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	if len(r.names) == 0 {
		return nil, fmt.Errorf("registry defines no tables")
	}
	return r, nil
}

func validateTable(t Table) error {
	if t.Name == "" {
		return fmt.Errorf("registry table with empty name")
	}

	// Each column gets at most one typed conversion. Ingestion converts the
	// declared lists concurrently, so one column in two lists would have two
	// workers rewriting the same cells.
	typed := make(map[string]string)
	for _, group := range []struct {
		kind string
		cols []string
	}{
		{"dateColumns", t.DateColumns},
		{"integerColumns", t.IntegerColumns},
		{"floatColumns", t.FloatColumns},
	} {
		for _, c := range group.cols {
			prev, ok := typed[c]
			switch {
			case ok && prev == group.kind:
				return fmt.Errorf("table %q: column %q declared twice in %s", t.Name, c, group.kind)
			case ok:
				return fmt.Errorf("table %q: column %q declared in both %s and %s", t.Name, c, prev, group.kind)
			}
			typed[c] = group.kind
		}
	}

	if len(t.Columns) > 0 {
		persisted := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			persisted[c] = true
		}
		for _, k := range t.Keys {
			if !persisted[k] {
				return fmt.Errorf("table %q: key column %q is not persisted", t.Name, k)
			}
		}
	}
	return nil
}

// Get returns the table with the given logical name.
func (r *Registry) Get(name string) (Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Names returns the table names in registry order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every table, sorted by name.
func (r *Registry) All() []Table {
	out := make([]Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tables.
func (r *Registry) Len() int { return len(r.tables) }
