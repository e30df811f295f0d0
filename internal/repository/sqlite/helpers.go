package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"daforfer/internal/domain"

	"github.com/facette/natsort"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// naturalLess orders names naturally ("t2" before "t10"). Names natsort
// cannot tell apart, such as "x1" and "x01", fall back to byte order.
func naturalLess(a, b string) bool {
	ab, ba := natsort.Compare(a, b), natsort.Compare(b, a)
	if ab != ba {
		return ab
	}
	return a < b
}

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// numericToNull converts a value's numeric view to sql.NullFloat64
func numericToNull(v domain.Value) sql.NullFloat64 {
	f, ok := v.Numeric()
	if !ok {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// ============================================================================
// Identifiers and Column Types
// ============================================================================

// quoteIdent quotes an SQL identifier
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// reservedTable reports whether name collides with bookkeeping tables
func reservedTable(name string) bool {
	lower := strings.ToLower(name)
	switch lower {
	case tocTable, tovTable, metaTable:
		return true
	}
	return strings.HasPrefix(lower, "sqlite_")
}

// validateTableName checks a table artifact name
func validateTableName(name string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if reservedTable(name) {
		return fmt.Errorf("%w: table name %q is reserved", domain.ErrInvalidName, name)
	}
	return nil
}

// columnDecl returns the declared SQL type for a column kind.
// MUST round-trip through kindFromDecl.
func columnDecl(kind domain.Kind) string {
	switch kind {
	case domain.KindInt:
		return "INTEGER"
	case domain.KindFloat:
		return "REAL"
	case domain.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// kindFromDecl maps a declared column type back to a kind, falling back to
// SQLite's affinity rules for tables written by other tools
func kindFromDecl(decl string) domain.Kind {
	upper := strings.ToUpper(strings.TrimSpace(decl))
	switch upper {
	case "BOOLEAN", "BOOL":
		return domain.KindBool
	case "REAL", "DOUBLE", "FLOAT", "DOUBLE PRECISION":
		return domain.KindFloat
	}
	switch {
	case strings.Contains(upper, "INT"):
		return domain.KindInt
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "CLOB"), strings.Contains(upper, "TEXT"):
		return domain.KindText
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return domain.KindFloat
	case upper == "NUMERIC" || strings.HasPrefix(upper, "DECIMAL"):
		return domain.KindFloat
	}
	return domain.KindText
}

// columnDef is one row of pragma_table_info
type columnDef struct {
	name string
	decl string
}

// tableColumns returns a table's columns in declaration order. A missing
// table yields no columns.
func tableColumns(ctx context.Context, q querier, table string) ([]columnDef, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []columnDef
	for rows.Next() {
		var c columnDef
		var decl sql.NullString
		if err := rows.Scan(&c.name, &decl); err != nil {
			return nil, err
		}
		c.decl = nullToString(decl)
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// ============================================================================
// Cell Conversion
// ============================================================================

// cellArg converts a cell to a driver argument
func cellArg(v domain.Value) any {
	if b, ok := v.Bool(); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v.Any()
}

// cellFromDriver converts a scanned driver value into a cell of the given kind
func cellFromDriver(kind domain.Kind, src any) (domain.Value, error) {
	if src == nil {
		return domain.Null(), nil
	}

	switch kind {
	case domain.KindInt:
		switch v := src.(type) {
		case int64:
			return domain.Int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return domain.Int(int64(v)), nil
			}
		}
	case domain.KindFloat:
		switch v := src.(type) {
		case float64:
			return domain.Float(v), nil
		case int64:
			return domain.Float(float64(v)), nil
		}
	case domain.KindBool:
		switch v := src.(type) {
		case bool:
			return domain.Bool(v), nil
		case int64:
			return domain.Bool(v != 0), nil
		case float64:
			return domain.Bool(v != 0), nil
		}
	case domain.KindText:
		switch v := src.(type) {
		case string:
			return domain.Text(v), nil
		case []byte:
			return domain.Text(string(v)), nil
		default:
			return domain.Text(fmt.Sprint(v)), nil
		}
	}
	return domain.Value{}, fmt.Errorf("%w: cannot read %T as %s", domain.ErrSchemaMismatch, src, kind)
}

// ============================================================================
// Driver Error Classification
// ============================================================================

// isUniqueViolation reports a primary key or unique constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// isBusy reports lock contention with another connection
func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}
