package repository

import (
	"context"

	"daforfer/internal/domain"
)

// Repository defines artifact storage over one database file
type Repository interface {
	// Table registry
	SaveTable(ctx context.Context, name, description string, table domain.Table, overwrite bool) error
	GetTable(ctx context.Context, name string) (domain.Table, error)
	DescribeTable(ctx context.Context, name string) (domain.TableInfo, error)
	RemoveTable(ctx context.Context, name string) error
	ListTables(ctx context.Context) ([]domain.TableEntry, error)

	// Value registry
	AddValue(ctx context.Context, entry domain.ValueEntry, overwrite bool) error
	GetValue(ctx context.Context, name string) (domain.ValueEntry, error)
	RemoveValue(ctx context.Context, name string) error
	ListValues(ctx context.Context) ([]domain.ValueEntry, error)

	// Close releases resources
	Close() error
}
