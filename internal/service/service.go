package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"daforfer/internal/codec"
	"daforfer/internal/domain"
	"daforfer/internal/logging"
	"daforfer/internal/tracing"
)

// SnapshotReader is the read side of a repository the export needs
type SnapshotReader interface {
	ListTables(ctx context.Context) ([]domain.TableEntry, error)
	GetTable(ctx context.Context, name string) (domain.Table, error)
	ListValues(ctx context.Context) ([]domain.ValueEntry, error)
}

// ExportService exports the artifacts of one database file
type ExportService struct {
	repo        SnapshotReader
	valuesSheet string
}

// NewExportService creates an export service. An empty valuesSheet uses
// codec.DefaultValuesSheet.
func NewExportService(repo SnapshotReader, valuesSheet string) *ExportService {
	if valuesSheet == "" {
		valuesSheet = codec.DefaultValuesSheet
	}
	return &ExportService{
		repo:        repo,
		valuesSheet: valuesSheet,
	}
}

// ExportResult describes a written workbook
type ExportResult struct {
	Path   string       `yaml:"path" json:"path"`
	Sheets []codec.Sheet `yaml:"sheets" json:"sheets"`
	Bytes  int64        `yaml:"bytes" json:"bytes"`
	// Digest is the hex BLAKE2b-256 of the workbook file
	Digest string `yaml:"digest" json:"digest"`
}

// Snapshot reads every table with its contents and every value
func (s *ExportService) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	entries, err := s.repo.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	snapshot := &domain.Snapshot{
		Tables: make([]domain.SnapshotTable, 0, len(entries)),
	}
	for _, entry := range entries {
		table, err := s.repo.GetTable(ctx, entry.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %q: %w", entry.Name, err)
		}
		snapshot.Tables = append(snapshot.Tables, domain.SnapshotTable{
			TableEntry: entry,
			Table:      table,
		})
	}

	snapshot.Values, err = s.repo.ListValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list values: %w", err)
	}
	return snapshot, nil
}

// Export writes every table and the value catalog to a workbook at
// outputPath, replacing any existing file.
func (s *ExportService) Export(ctx context.Context, outputPath string) (result *ExportResult, err error) {
	ctx, span := tracing.Start(ctx, "export", tracing.Export(outputPath))
	defer func() { tracing.End(span, err) }()

	if strings.TrimSpace(outputPath) == "" {
		return nil, fmt.Errorf("%w: output path is empty", domain.ErrExportFailed)
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrExportFailed, err)
	}

	workbook := codec.NewWorkbookCodec(s.valuesSheet)
	written, err := writeFileAtomic(outputPath, func(w io.Writer) error {
		return workbook.Export(snapshot, w)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExportFailed, outputPath, err)
	}

	result = &ExportResult{
		Path:   outputPath,
		Sheets: workbook.Plan(snapshot),
		Bytes:  written.size,
		Digest: hex.EncodeToString(written.digest),
	}

	logger := logging.Ctx(ctx)
	for _, sheet := range result.Sheets {
		logger.Debug("export", "%s %q -> sheet %q (%d rows)", sheet.Kind, sheet.Artifact, sheet.Name, sheet.Rows)
	}
	return result, nil
}

// ManifestCodec returns the manifest codec for format ("yaml" or "json")
func (s *ExportService) ManifestCodec(format string) (codec.Exporter, error) {
	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		return codec.NewYAMLCodec(s.valuesSheet), nil
	case "json":
		return codec.NewJSONCodec(s.valuesSheet), nil
	default:
		return nil, fmt.Errorf("%w: unknown manifest format %q", domain.ErrExportFailed, format)
	}
}

// WriteManifest writes a catalog summary of the database to w: every table
// with its sheet, columns and row count, and every value.
func (s *ExportService) WriteManifest(ctx context.Context, w io.Writer, format string) (err error) {
	ctx, span := tracing.Start(ctx, "manifest")
	defer func() { tracing.End(span, err) }()

	exporter, err := s.ManifestCodec(format)
	if err != nil {
		return err
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrExportFailed, err)
	}
	if err := exporter.Export(snapshot, w); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrExportFailed, err)
	}
	return nil
}

// ManifestFormat picks the manifest format for path: JSON for a .json
// extension, YAML for anything else.
func ManifestFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}

// WriteManifestFile writes the manifest to path in the format its extension
// selects. Like Export it replaces path atomically.
func (s *ExportService) WriteManifestFile(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: manifest path is empty", domain.ErrExportFailed)
	}
	format := ManifestFormat(path)
	_, err := writeFileAtomic(path, func(w io.Writer) error {
		return s.WriteManifest(ctx, w, format)
	})
	if err != nil {
		if errors.Is(err, domain.ErrExportFailed) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrExportFailed, path, err)
	}
	return nil
}
