package domain

import (
	"fmt"
	"strings"
)

// Column is a named, typed sequence of cells
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// Table is an ordered set of equal-length columns
type Table struct {
	Columns []Column
}

// NewTable builds a table from columns in the given order
func NewTable(columns ...Column) Table {
	return Table{Columns: columns}
}

// IntColumn builds an integer column
func IntColumn(name string, values ...int64) Column {
	col := Column{Name: name, Kind: KindInt, Values: make([]Value, len(values))}
	for i, v := range values {
		col.Values[i] = Int(v)
	}
	return col
}

// FloatColumn builds a float column
func FloatColumn(name string, values ...float64) Column {
	col := Column{Name: name, Kind: KindFloat, Values: make([]Value, len(values))}
	for i, v := range values {
		col.Values[i] = Float(v)
	}
	return col
}

// BoolColumn builds a boolean column
func BoolColumn(name string, values ...bool) Column {
	col := Column{Name: name, Kind: KindBool, Values: make([]Value, len(values))}
	for i, v := range values {
		col.Values[i] = Bool(v)
	}
	return col
}

// TextColumn builds a text column
func TextColumn(name string, values ...string) Column {
	col := Column{Name: name, Kind: KindText, Values: make([]Value, len(values))}
	for i, v := range values {
		col.Values[i] = Text(v)
	}
	return col
}

// NumRows returns the row count (0 for a table without columns)
func (t Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// ColumnNames returns column names in order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Row returns the cells of row i in column order
func (t Table) Row(i int) []Value {
	row := make([]Value, len(t.Columns))
	for j, c := range t.Columns {
		row[j] = c.Values[i]
	}
	return row
}

// reservedColumns shadow SQLite's implicit row identifier
var reservedColumns = map[string]bool{
	"rowid":   true,
	"_rowid_": true,
	"oid":     true,
}

// Validate checks that the table can be stored: at least one column, unique
// non-reserved column names, equal column lengths and cells matching their
// column's kind.
func (t Table) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table has no columns", ErrSchemaMismatch)
	}

	seen := make(map[string]bool, len(t.Columns))
	rows := len(t.Columns[0].Values)
	for _, col := range t.Columns {
		key := strings.ToLower(col.Name)
		if strings.TrimSpace(col.Name) == "" {
			return fmt.Errorf("%w: empty column name", ErrSchemaMismatch)
		}
		if reservedColumns[key] {
			return fmt.Errorf("%w: column name %q is reserved", ErrSchemaMismatch, col.Name)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, col.Name)
		}
		seen[key] = true

		if !col.Kind.Valid() {
			return fmt.Errorf("%w: column %q has unknown kind %q", ErrSchemaMismatch, col.Name, col.Kind)
		}
		if len(col.Values) != rows {
			return fmt.Errorf("%w: column %q has %d rows, expected %d",
				ErrSchemaMismatch, col.Name, len(col.Values), rows)
		}
		for i, v := range col.Values {
			if v.IsNull() {
				continue
			}
			if v.Kind() != col.Kind {
				return fmt.Errorf("%w: column %q row %d holds %s, expected %s",
					ErrSchemaMismatch, col.Name, i, v.Kind(), col.Kind)
			}
			if err := v.storable(); err != nil {
				return fmt.Errorf("column %q row %d: %w", col.Name, i, err)
			}
		}
	}
	return nil
}
