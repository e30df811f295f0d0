package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"daforfer/internal/codec"
	"daforfer/internal/domain"
	"daforfer/internal/repository/sqlite"
)

func newTestRepo(c *qt.C) *sqlite.Repository {
	c.Helper()
	repo, err := sqlite.Open(filepath.Join(c.TempDir(), "analysis.db"))
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { repo.Close() })
	return repo
}

func seed(c *qt.C, repo *sqlite.Repository) {
	c.Helper()
	ctx := context.Background()

	c.Assert(repo.SaveTable(ctx, "A", "first table", domain.NewTable(
		domain.TextColumn("group", "x", "y"),
		domain.IntColumn("value", 1, 2),
	), false), qt.IsNil)
	c.Assert(repo.SaveTable(ctx, "B", "second table", domain.NewTable(
		domain.FloatColumn("ratio", 0.25),
	), false), qt.IsNil)
	c.Assert(repo.AddValue(ctx, domain.ValueEntry{
		Name: "x", Description: "a count", Value: domain.Int(3), Type: "int",
	}, false), qt.IsNil)
	c.Assert(repo.AddValue(ctx, domain.ValueEntry{
		Name: "y", Description: "a flag", Value: domain.Bool(true), Type: "bool",
	}, false), qt.IsNil)
}

func openWorkbook(c *qt.C, path string) *excelize.File {
	c.Helper()
	f, err := excelize.OpenFile(path)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { f.Close() })
	return f
}

func rows(c *qt.C, f *excelize.File, sheet string) [][]string {
	c.Helper()
	got, err := f.GetRows(sheet)
	c.Assert(err, qt.IsNil)
	return got
}

func TestExportSingleTable(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)

	c.Assert(repo.SaveTable(ctx, "t1", "first", domain.NewTable(
		domain.TextColumn("group", "A", "B"),
		domain.IntColumn("value", 1, 2),
	), false), qt.IsNil)

	out := filepath.Join(c.TempDir(), "out.xlsx")
	result, err := NewExportService(repo, "").Export(ctx, out)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Path, qt.Equals, out)

	f := openWorkbook(c, out)
	c.Assert(f.GetSheetList(), qt.DeepEquals, []string{"t1", "values"})
	c.Assert(rows(c, f, "t1"), qt.DeepEquals, [][]string{
		{"group", "value"},
		{"A", "1"},
		{"B", "2"},
	})
	c.Assert(rows(c, f, "values"), qt.DeepEquals, [][]string{
		{"name", "description", "value", "type"},
	})
}

func TestExportRoundTrip(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)

	out := filepath.Join(c.TempDir(), "out.xlsx")
	result, err := NewExportService(repo, "").Export(ctx, out)
	c.Assert(err, qt.IsNil)

	c.Assert(result.Sheets, qt.DeepEquals, []codec.Sheet{
		{Name: "A", Artifact: "A", Kind: codec.SheetKindTable, Rows: 2},
		{Name: "B", Artifact: "B", Kind: codec.SheetKindTable, Rows: 1},
		{Name: "values", Artifact: "values", Kind: codec.SheetKindValues, Rows: 2},
	})

	f := openWorkbook(c, out)
	c.Assert(f.GetSheetList(), qt.DeepEquals, []string{"A", "B", "values"})
	c.Assert(rows(c, f, "B"), qt.DeepEquals, [][]string{{"ratio"}, {"0.25"}})
	c.Assert(rows(c, f, "values"), qt.DeepEquals, [][]string{
		{"name", "description", "value", "type"},
		{"x", "a count", "3", "int"},
		{"y", "a flag", "TRUE", "bool"},
	})

	data, err := os.ReadFile(out)
	c.Assert(err, qt.IsNil)
	sum := blake2b.Sum256(data)
	c.Assert(result.Digest, qt.Equals, hex.EncodeToString(sum[:]))
	c.Assert(result.Bytes, qt.Equals, int64(len(data)))
}

func TestExportReplacesExistingFile(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)

	out := filepath.Join(c.TempDir(), "out.xlsx")
	c.Assert(os.WriteFile(out, []byte("stale"), 0o644), qt.IsNil)

	_, err := NewExportService(repo, "").Export(ctx, out)
	c.Assert(err, qt.IsNil)

	f := openWorkbook(c, out)
	c.Assert(f.GetSheetList(), qt.HasLen, 3)
}

func TestExportCustomValuesSheet(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)
	c.Assert(repo.SaveTable(ctx, "scalars", "", domain.NewTable(domain.IntColumn("n", 7)), false), qt.IsNil)

	out := filepath.Join(c.TempDir(), "out.xlsx")
	_, err := NewExportService(repo, "scalars").Export(ctx, out)
	c.Assert(err, qt.IsNil)

	f := openWorkbook(c, out)
	c.Assert(f.GetSheetList(), qt.DeepEquals, []string{"A", "B", "scalars_2", "scalars"})
	c.Assert(rows(c, f, "scalars_2"), qt.DeepEquals, [][]string{{"n"}, {"7"}})
}

func TestExportLeavesDatabaseUnchanged(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)

	tablesBefore, err := repo.ListTables(ctx)
	c.Assert(err, qt.IsNil)
	valuesBefore, err := repo.ListValues(ctx)
	c.Assert(err, qt.IsNil)

	_, err = NewExportService(repo, "").Export(ctx, filepath.Join(c.TempDir(), "out.xlsx"))
	c.Assert(err, qt.IsNil)

	tablesAfter, err := repo.ListTables(ctx)
	c.Assert(err, qt.IsNil)
	valuesAfter, err := repo.ListValues(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(tablesAfter, qt.DeepEquals, tablesBefore)
	c.Assert(valuesAfter, qt.CmpEquals(cmp.AllowUnexported(domain.Value{})), valuesBefore)
}

func TestExportUnwritableDestination(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)

	out := filepath.Join(c.TempDir(), "missing", "out.xlsx")
	_, err := NewExportService(repo, "").Export(ctx, out)
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)

	_, statErr := os.Stat(out)
	c.Assert(os.IsNotExist(statErr), qt.IsTrue)
}

func TestExportFailureRemovesTemporaryFile(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)

	dir := c.TempDir()
	// A directory at the destination makes the final rename fail.
	out := filepath.Join(dir, "out.xlsx")
	c.Assert(os.Mkdir(out, 0o755), qt.IsNil)

	_, err := NewExportService(repo, "").Export(ctx, out)
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)

	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
	c.Assert(entries[0].Name(), qt.Equals, "out.xlsx")
	c.Assert(entries[0].IsDir(), qt.IsTrue)
}

func TestExportEmptyPath(t *testing.T) {
	c := qt.New(t)
	repo := newTestRepo(c)

	_, err := NewExportService(repo, "").Export(context.Background(), " ")
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)
}

func TestExportClosedRepository(t *testing.T) {
	c := qt.New(t)
	repo := newTestRepo(c)
	c.Assert(repo.Close(), qt.IsNil)

	out := filepath.Join(c.TempDir(), "out.xlsx")
	_, err := NewExportService(repo, "").Export(context.Background(), out)
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)
	c.Assert(errors.Is(err, domain.ErrHandleClosed), qt.IsTrue)

	_, statErr := os.Stat(out)
	c.Assert(os.IsNotExist(statErr), qt.IsTrue)
}

// failingReader fails the table read after listing
type failingReader struct {
	entries []domain.TableEntry
	err     error
}

func (r *failingReader) ListTables(ctx context.Context) ([]domain.TableEntry, error) {
	return r.entries, nil
}

func (r *failingReader) GetTable(ctx context.Context, name string) (domain.Table, error) {
	return domain.Table{}, r.err
}

func (r *failingReader) ListValues(ctx context.Context) ([]domain.ValueEntry, error) {
	return nil, nil
}

func TestExportReadFailureKeepsCause(t *testing.T) {
	c := qt.New(t)

	reader := &failingReader{
		entries: []domain.TableEntry{{Name: "gone"}},
		err:     domain.ErrNotFound,
	}
	out := filepath.Join(c.TempDir(), "out.xlsx")
	_, err := NewExportService(reader, "").Export(context.Background(), out)
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)
	c.Assert(errors.Is(err, domain.ErrNotFound), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, `.*"gone".*`)
}

func TestWriteManifest(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)

	var buf bytes.Buffer
	c.Assert(NewExportService(repo, "").WriteManifest(ctx, &buf, "yaml"), qt.IsNil)

	var doc struct {
		Tables []struct {
			Name  string `yaml:"name"`
			Sheet string `yaml:"sheet"`
			Rows  int    `yaml:"rows"`
		} `yaml:"tables"`
		Values struct {
			Sheet   string `yaml:"sheet"`
			Entries []struct {
				Name  string `yaml:"name"`
				Value any    `yaml:"value"`
			} `yaml:"entries"`
		} `yaml:"values"`
	}
	c.Assert(yaml.Unmarshal(buf.Bytes(), &doc), qt.IsNil)
	c.Assert(doc.Tables, qt.HasLen, 2)
	c.Assert(doc.Tables[0].Name, qt.Equals, "A")
	c.Assert(doc.Tables[0].Rows, qt.Equals, 2)
	c.Assert(doc.Values.Sheet, qt.Equals, "values")
	c.Assert(doc.Values.Entries[1].Value, qt.Equals, true)
}

func TestWriteManifestJSON(t *testing.T) {
	c := qt.New(t)
	repo := newTestRepo(c)
	seed(c, repo)

	var buf bytes.Buffer
	c.Assert(NewExportService(repo, "").WriteManifest(context.Background(), &buf, "json"), qt.IsNil)
	c.Assert(strings.HasPrefix(buf.String(), "{"), qt.IsTrue)
}

func TestWriteManifestUnknownFormat(t *testing.T) {
	c := qt.New(t)
	repo := newTestRepo(c)

	var buf bytes.Buffer
	err := NewExportService(repo, "").WriteManifest(context.Background(), &buf, "toml")
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)
	c.Assert(buf.Len(), qt.Equals, 0)
}

func TestManifestFormat(t *testing.T) {
	c := qt.New(t)

	for path, want := range map[string]string{
		"catalog.json": "json",
		"CATALOG.JSON": "json",
		"catalog.yaml": "yaml",
		"catalog.yml":  "yaml",
		"catalog.txt":  "yaml",
		"catalog":      "yaml",
	} {
		c.Check(ManifestFormat(path), qt.Equals, want, qt.Commentf("path %s", path))
	}
}

func TestWriteManifestFile(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)
	seed(c, repo)

	dir := c.TempDir()
	path := filepath.Join(dir, "catalog.json")
	c.Assert(os.WriteFile(path, []byte("stale"), 0o644), qt.IsNil)

	c.Assert(NewExportService(repo, "").WriteManifestFile(ctx, path), qt.IsNil)

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.HasPrefix(string(data), "{"), qt.IsTrue)

	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
}

func TestWriteManifestFileFailureKeepsExisting(t *testing.T) {
	c := qt.New(t)
	repo := newTestRepo(c)
	c.Assert(repo.Close(), qt.IsNil)

	dir := c.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	c.Assert(os.WriteFile(path, []byte("previous"), 0o644), qt.IsNil)

	err := NewExportService(repo, "").WriteManifestFile(context.Background(), path)
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)
	c.Assert(errors.Is(err, domain.ErrHandleClosed), qt.IsTrue)

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "previous")

	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 1)
}

func TestExportRejectsUnrepresentableText(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepo(c)

	c.Assert(repo.SaveTable(ctx, "notes", "", domain.NewTable(
		domain.TextColumn("s", "fine", "a\x01b"),
	), false), qt.IsNil)

	dir := c.TempDir()
	out := filepath.Join(dir, "out.xlsx")
	_, err := NewExportService(repo, "").Export(ctx, out)
	c.Assert(errors.Is(err, domain.ErrExportFailed), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, `.*row 2 of "notes".*`)

	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 0)
}
