package domain

import (
	"fmt"
	"strings"
)

// TableEntry is one row of the table catalog
type TableEntry struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// ColumnInfo describes a stored column without its cells
type ColumnInfo struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"type"`
}

// TableInfo is a catalog entry together with the physical table's shape
type TableInfo struct {
	TableEntry `yaml:",inline"`
	Columns    []ColumnInfo `yaml:"columns"`
	Rows       int          `yaml:"rows"`
}

// ValueEntry is one row of the value catalog. The row is the artifact.
type ValueEntry struct {
	Name        string
	Description string
	Value       Value
	// Type is the caller's tag for Value; it must agree with Value.Kind()
	Type string
}

// Normalize checks the type tag against the value and returns the entry with
// its canonical type. An empty tag is inferred from the value.
func (e ValueEntry) Normalize() (ValueEntry, error) {
	if err := ValidateName(e.Name); err != nil {
		return e, err
	}
	if e.Value.IsNull() {
		return e, fmt.Errorf("%w: value %q is null", ErrSchemaMismatch, e.Name)
	}
	if err := e.Value.storable(); err != nil {
		return e, fmt.Errorf("value %q: %w", e.Name, err)
	}

	if strings.TrimSpace(e.Type) == "" {
		e.Type = string(e.Value.Kind())
		return e, nil
	}
	kind, err := ParseKind(e.Type)
	if err != nil {
		return e, fmt.Errorf("value %q: %w", e.Name, err)
	}
	if kind != e.Value.Kind() {
		return e, fmt.Errorf("%w: value %q tagged %q but holds %s",
			ErrSchemaMismatch, e.Name, e.Type, e.Value.Kind())
	}
	e.Type = string(kind)
	return e, nil
}

// SnapshotTable is a table artifact with its contents
type SnapshotTable struct {
	TableEntry
	Table Table
}

// Snapshot is every artifact in a database file at one point in time
type Snapshot struct {
	Tables []SnapshotTable
	Values []ValueEntry
}

// ValidateName rejects names that cannot identify an artifact
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: name %q contains NUL", ErrInvalidName, name)
	}
	return nil
}
