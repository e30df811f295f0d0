package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"daforfer/internal/domain"
)

// lookupTable reports whether name has a catalog row and a physical table
func lookupTable(ctx context.Context, q querier, name string) (inCatalog, physical bool, err error) {
	var found int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM toc WHERE name = ?`, name).Scan(&found)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return false, false, fmt.Errorf("failed to query catalog: %w", err)
	default:
		inCatalog = true
	}

	err = q.QueryRowContext(ctx, `
		SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE
	`, name).Scan(&found)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return false, false, fmt.Errorf("failed to query schema: %w", err)
	default:
		physical = true
	}
	return inCatalog, physical, nil
}

// SaveTable stores table under name and records it in the catalog.
// The physical table and the catalog row change in one transaction.
func (r *Repository) SaveTable(ctx context.Context, name, description string, table domain.Table, overwrite bool) (err error) {
	ctx, end := withSpan(ctx, "SaveTable", "table", name)
	defer end(&err)

	if err := validateTableName(name); err != nil {
		return err
	}
	if err := table.Validate(); err != nil {
		return fmt.Errorf("table %q: %w", name, err)
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inCatalog, physical, err := lookupTable(ctx, tx, name)
	if err != nil {
		return err
	}
	if (inCatalog || physical) && !overwrite {
		return fmt.Errorf("%w: table %q already exists", domain.ErrDuplicateName, name)
	}

	if physical {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
			return driverError(fmt.Sprintf("failed to drop table %s", name), err)
		}
	}
	if err := createTable(ctx, tx, name, table); err != nil {
		return err
	}

	if r.beforeCatalogWrite != nil {
		if err := r.beforeCatalogWrite(name); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO toc (name, description) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			name = excluded.name,
			description = excluded.description
	`, name, description); err != nil {
		return driverError("failed to upsert catalog", err)
	}

	if err := tx.Commit(); err != nil {
		return driverError("failed to commit transaction", err)
	}

	r.logger.Debug("store", "saved %s to %s (%d rows)", name, r.path, table.NumRows())
	return nil
}

// createTable creates the physical table and inserts every row in order
func createTable(ctx context.Context, tx *sql.Tx, name string, table domain.Table) error {
	defs := make([]string, len(table.Columns))
	cols := make([]string, len(table.Columns))
	marks := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = quoteIdent(c.Name)
		defs[i] = cols[i] + " " + columnDecl(c.Kind)
		marks[i] = "?"
	}

	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return driverError(fmt.Sprintf("failed to create table %s", name), err)
	}

	if table.NumRows() == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(table.Columns))
	for row := 0; row < table.NumRows(); row++ {
		for i, c := range table.Columns {
			args[i] = cellArg(c.Values[row])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return driverError(fmt.Sprintf("failed to insert row %d into %s", row, name), err)
		}
	}
	return nil
}

// GetTable loads a stored table with its rows in insertion order
func (r *Repository) GetTable(ctx context.Context, name string) (table domain.Table, err error) {
	ctx, end := withSpan(ctx, "GetTable", "table", name)
	defer end(&err)

	db, err := r.conn()
	if err != nil {
		return domain.Table{}, err
	}

	defs, err := catalogedColumns(ctx, db, name)
	if err != nil {
		return domain.Table{}, err
	}

	table.Columns = make([]domain.Column, len(defs))
	cols := make([]string, len(defs))
	for i, d := range defs {
		table.Columns[i] = domain.Column{Name: d.name, Kind: kindFromDecl(d.decl), Values: make([]domain.Value, 0)}
		cols[i] = quoteIdent(d.name)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid",
		strings.Join(cols, ", "), quoteIdent(name)))
	if err != nil {
		return domain.Table{}, driverError(fmt.Sprintf("failed to query table %s", name), err)
	}
	defer rows.Close()

	dest := make([]any, len(defs))
	ptrs := make([]any, len(defs))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Table{}, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}
		for i, src := range dest {
			cell, err := cellFromDriver(table.Columns[i].Kind, src)
			if err != nil {
				return domain.Table{}, fmt.Errorf("table %q column %q: %w", name, defs[i].name, err)
			}
			table.Columns[i].Values = append(table.Columns[i].Values, cell)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Table{}, fmt.Errorf("error iterating %s: %w", name, err)
	}

	return table, nil
}

// catalogedColumns returns the physical columns of a cataloged table, or
// ErrNotFound if either side is missing
func catalogedColumns(ctx context.Context, q querier, name string) ([]columnDef, error) {
	inCatalog, _, err := lookupTable(ctx, q, name)
	if err != nil {
		return nil, driverError("failed to look up table", err)
	}
	if !inCatalog {
		return nil, fmt.Errorf("%w: table %q", domain.ErrNotFound, name)
	}

	defs, err := tableColumns(ctx, q, name)
	if err != nil {
		return nil, driverError(fmt.Sprintf("failed to inspect table %s", name), err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: table %q is cataloged but has no data", domain.ErrNotFound, name)
	}
	return defs, nil
}

// DescribeTable returns a table's catalog entry, columns and row count
// without loading its cells
func (r *Repository) DescribeTable(ctx context.Context, name string) (info domain.TableInfo, err error) {
	ctx, end := withSpan(ctx, "DescribeTable", "table", name)
	defer end(&err)

	db, err := r.conn()
	if err != nil {
		return domain.TableInfo{}, err
	}

	defs, err := catalogedColumns(ctx, db, name)
	if err != nil {
		return domain.TableInfo{}, err
	}

	var storedName string
	var description sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT name, description FROM toc WHERE name = ?`, name).
		Scan(&storedName, &description); err != nil {
		return domain.TableInfo{}, driverError("failed to query catalog", err)
	}
	info.Name = storedName
	info.Description = nullToString(description)

	for _, d := range defs {
		info.Columns = append(info.Columns, domain.ColumnInfo{Name: d.name, Kind: kindFromDecl(d.decl)})
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&info.Rows); err != nil {
		return domain.TableInfo{}, driverError(fmt.Sprintf("failed to count rows of %s", name), err)
	}
	return info, nil
}

// RemoveTable drops the physical table and deletes its catalog row together
func (r *Repository) RemoveTable(ctx context.Context, name string) (err error) {
	ctx, end := withSpan(ctx, "RemoveTable", "table", name)
	defer end(&err)

	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inCatalog, physical, err := lookupTable(ctx, tx, name)
	if err != nil {
		return err
	}
	if !inCatalog {
		return fmt.Errorf("%w: table %q", domain.ErrNotFound, name)
	}

	if physical {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
			return driverError(fmt.Sprintf("failed to drop table %s", name), err)
		}
	}

	if r.beforeCatalogWrite != nil {
		if err := r.beforeCatalogWrite(name); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM toc WHERE name = ?`, name); err != nil {
		return driverError("failed to delete catalog row", err)
	}

	if err := tx.Commit(); err != nil {
		return driverError("failed to commit transaction", err)
	}

	r.logger.Debug("store", "removed %s from %s", name, r.path)
	return nil
}

// ListTables returns the table catalog in natural name order
func (r *Repository) ListTables(ctx context.Context) (entries []domain.TableEntry, err error) {
	ctx, end := withSpan(ctx, "ListTables", "table", "")
	defer end(&err)

	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name, description FROM toc ORDER BY name`)
	if err != nil {
		return nil, driverError("failed to query catalog", err)
	}
	defer rows.Close()

	entries = []domain.TableEntry{}
	for rows.Next() {
		var e domain.TableEntry
		var description sql.NullString
		if err := rows.Scan(&e.Name, &description); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		e.Description = nullToString(description)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return naturalLess(entries[i].Name, entries[j].Name)
	})
	return entries, nil
}
