package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"daforfer/internal/domain"
)

// AddValue stores a scalar in the value catalog
func (r *Repository) AddValue(ctx context.Context, entry domain.ValueEntry, overwrite bool) (err error) {
	ctx, end := withSpan(ctx, "AddValue", "value", entry.Name)
	defer end(&err)

	entry, err = entry.Normalize()
	if err != nil {
		return err
	}

	db, err := r.conn()
	if err != nil {
		return err
	}

	query := `INSERT INTO tov (name, description, value, type, raw) VALUES (?, ?, ?, ?, ?)`
	if overwrite {
		query += `
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			value = excluded.value,
			type = excluded.type,
			raw = excluded.raw`
	}

	_, err = db.ExecContext(ctx, query,
		entry.Name, entry.Description, numericToNull(entry.Value), entry.Type, entry.Value.String())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: value %q already exists", domain.ErrDuplicateName, entry.Name)
		}
		return driverError("failed to insert value", err)
	}

	r.logger.Debug("store", "stored value %s = %s (%s)", entry.Name, entry.Value, entry.Type)
	return nil
}

// valueRow holds the columns of a tov row for scanning
type valueRow struct {
	Name        string
	Description sql.NullString
	Value       sql.NullFloat64
	Type        sql.NullString
	Raw         sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match valueColumns order exactly
func (r *valueRow) scanArgs() []interface{} {
	return []interface{}{
		&r.Name,
		&r.Description,
		&r.Value,
		&r.Type,
		&r.Raw,
	}
}

const valueColumns = `name, description, value, type, raw`

// toDomain decodes the row. Rows without raw (written before it existed)
// are rebuilt from the numeric column.
func (r *valueRow) toDomain() (domain.ValueEntry, error) {
	entry := domain.ValueEntry{
		Name:        r.Name,
		Description: nullToString(r.Description),
		Type:        nullToString(r.Type),
	}

	kind, kindErr := domain.ParseKind(entry.Type)
	switch {
	case kindErr == nil && r.Raw.Valid:
		v, err := domain.ParseValue(kind, r.Raw.String)
		if err != nil {
			return entry, fmt.Errorf("value %q: %w", r.Name, err)
		}
		entry.Value = v
	case !r.Value.Valid:
		if r.Raw.Valid {
			entry.Value = domain.Text(r.Raw.String)
			return entry, nil
		}
		return entry, fmt.Errorf("%w: value %q has no data", domain.ErrSchemaMismatch, r.Name)
	case kindErr != nil:
		entry.Value = domain.Float(r.Value.Float64)
	default:
		switch kind {
		case domain.KindInt:
			entry.Value = domain.Int(int64(r.Value.Float64))
		case domain.KindBool:
			entry.Value = domain.Bool(r.Value.Float64 != 0)
		case domain.KindText:
			entry.Value = domain.Text(strconv.FormatFloat(r.Value.Float64, 'g', -1, 64))
		default:
			entry.Value = domain.Float(r.Value.Float64)
		}
	}
	return entry, nil
}

// GetValue returns a stored scalar with its type tag and description
func (r *Repository) GetValue(ctx context.Context, name string) (entry domain.ValueEntry, err error) {
	ctx, end := withSpan(ctx, "GetValue", "value", name)
	defer end(&err)

	db, err := r.conn()
	if err != nil {
		return domain.ValueEntry{}, err
	}

	var row valueRow
	err = db.QueryRowContext(ctx, `SELECT `+valueColumns+` FROM tov WHERE name = ?`, name).Scan(row.scanArgs()...)
	if err == sql.ErrNoRows {
		return domain.ValueEntry{}, fmt.Errorf("%w: value %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return domain.ValueEntry{}, driverError("failed to query value", err)
	}
	return row.toDomain()
}

// RemoveValue deletes a scalar from the value catalog
func (r *Repository) RemoveValue(ctx context.Context, name string) (err error) {
	ctx, end := withSpan(ctx, "RemoveValue", "value", name)
	defer end(&err)

	db, err := r.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM tov WHERE name = ?`, name)
	if err != nil {
		return driverError("failed to delete value", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: value %q", domain.ErrNotFound, name)
	}

	r.logger.Debug("store", "removed value %s from %s", name, r.path)
	return nil
}

// ListValues returns the value catalog in natural name order
func (r *Repository) ListValues(ctx context.Context) (entries []domain.ValueEntry, err error) {
	ctx, end := withSpan(ctx, "ListValues", "value", "")
	defer end(&err)

	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+valueColumns+` FROM tov ORDER BY name`)
	if err != nil {
		return nil, driverError("failed to query values", err)
	}
	defer rows.Close()

	entries = []domain.ValueEntry{}
	for rows.Next() {
		var row valueRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating values: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return naturalLess(entries[i].Name, entries[j].Name)
	})
	return entries, nil
}
