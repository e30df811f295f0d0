package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"daforfer/internal/domain"
	"daforfer/internal/repository/sqlite"
)

// isolate keeps the host's config files and environment out of the test
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	for _, key := range []string{"DAFORFER_CONFIG", "DAFORFER_DB_PATH", "DAFORFER_BUSY_TIMEOUT", "DAFORFER_VALUES_SHEET", "DAFORFER_VERBOSE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func seedDatabase(c *qt.C) string {
	c.Helper()
	path := filepath.Join(c.TempDir(), "analysis.db")
	repo, err := sqlite.Open(path)
	c.Assert(err, qt.IsNil)
	defer repo.Close()

	ctx := context.Background()
	c.Assert(repo.SaveTable(ctx, "t1", "first", domain.NewTable(
		domain.TextColumn("group", "A", "B"),
		domain.IntColumn("value", 1, 2),
	), false), qt.IsNil)
	c.Assert(repo.AddValue(ctx, domain.ValueEntry{
		Name: "pi", Description: "circle constant", Value: domain.Float(3.14), Type: "float",
	}, false), qt.IsNil)
	return path
}

func execApp(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	err := makeApp(strings.NewReader(""), &out, &errOut).Run(append([]string{"daforfer"}, args...))
	if err != nil {
		code = 1
	}
	return code, out.String(), errOut.String()
}

func TestExport(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	db := seedDatabase(c)
	out := filepath.Join(c.TempDir(), "out.xlsx")

	code, stdout, stderr := execApp(db, out)
	c.Assert(code, qt.Equals, 0, qt.Commentf("stderr: %s", stderr))
	c.Assert(strings.TrimSpace(stdout), qt.Equals, "Database "+db+" successfully exported to "+out)

	f, err := excelize.OpenFile(out)
	c.Assert(err, qt.IsNil)
	defer f.Close()
	c.Assert(f.GetSheetList(), qt.DeepEquals, []string{"t1", "values"})

	values, err := f.GetRows("values")
	c.Assert(err, qt.IsNil)
	c.Assert(values, qt.DeepEquals, [][]string{
		{"name", "description", "value", "type"},
		{"pi", "circle constant", "3.14", "float"},
	})
}

func TestExportMissingDatabase(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	dir := c.TempDir()
	out := filepath.Join(dir, "out.xlsx")

	code, stdout, stderr := execApp(filepath.Join(dir, "missing.db"), out)
	c.Assert(code, qt.Equals, 1)
	c.Assert(stdout, qt.Equals, "")
	c.Assert(strings.Count(stderr, "\n"), qt.Equals, 1)
	c.Assert(stderr, qt.Contains, "error:")
	c.Assert(stderr, qt.Contains, "storage unavailable")

	_, err := os.Stat(filepath.Join(dir, "missing.db"))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
	_, err = os.Stat(out)
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestExportMissingArguments(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	code, _, stderr := execApp()
	c.Assert(code, qt.Equals, 1)
	c.Assert(stderr, qt.Contains, "<input_database_path> <output_workbook_path>")
}

func TestExportUnwritableOutput(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	db := seedDatabase(c)
	code, _, stderr := execApp(db, filepath.Join(c.TempDir(), "no", "such", "out.xlsx"))
	c.Assert(code, qt.Equals, 1)
	c.Assert(stderr, qt.Contains, "export failed")
}

func TestExportWithManifest(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	db := seedDatabase(c)
	dir := c.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")

	code, _, stderr := execApp("--manifest", manifestPath, db, filepath.Join(dir, "out.xlsx"))
	c.Assert(code, qt.Equals, 0, qt.Commentf("stderr: %s", stderr))

	data, err := os.ReadFile(manifestPath)
	c.Assert(err, qt.IsNil)
	var doc struct {
		Tables []struct {
			Name  string `json:"name"`
			Sheet string `json:"sheet"`
		} `json:"tables"`
	}
	c.Assert(json.Unmarshal(data, &doc), qt.IsNil)
	c.Assert(doc.Tables, qt.HasLen, 1)
	c.Assert(doc.Tables[0].Sheet, qt.Equals, "t1")
}

func TestExportManifestOtherExtensionIsYAML(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	db := seedDatabase(c)
	dir := c.TempDir()
	manifestPath := filepath.Join(dir, "catalog.txt")

	code, _, stderr := execApp("--manifest", manifestPath, db, filepath.Join(dir, "out.xlsx"))
	c.Assert(code, qt.Equals, 0, qt.Commentf("stderr: %s", stderr))

	data, err := os.ReadFile(manifestPath)
	c.Assert(err, qt.IsNil)
	var doc struct {
		Tables []struct {
			Name string `yaml:"name"`
		} `yaml:"tables"`
	}
	c.Assert(yaml.Unmarshal(data, &doc), qt.IsNil)
	c.Assert(doc.Tables, qt.HasLen, 1)
	c.Assert(doc.Tables[0].Name, qt.Equals, "t1")
	c.Assert(strings.HasPrefix(string(data), "{"), qt.IsFalse)
}

func TestExportManifestDirectoryMissing(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	db := seedDatabase(c)
	dir := c.TempDir()
	out := filepath.Join(dir, "out.xlsx")

	code, _, stderr := execApp("--manifest", filepath.Join(dir, "no", "manifest.yaml"), db, out)
	c.Assert(code, qt.Equals, 1)
	c.Assert(stderr, qt.Contains, "export failed")

	_, err := os.Stat(out)
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestExportFromConfigFile(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	db := seedDatabase(c)
	dir := c.TempDir()
	out := filepath.Join(dir, "from-config.xlsx")
	configPath := filepath.Join(dir, "daforfer.yaml")
	data := "database:\n  path: " + db + "\nexport:\n  values_sheet: scalars\n  output_path: " + out + "\n"
	c.Assert(os.WriteFile(configPath, []byte(data), 0o644), qt.IsNil)

	code, _, stderr := execApp("--config", configPath)
	c.Assert(code, qt.Equals, 0, qt.Commentf("stderr: %s", stderr))

	f, err := excelize.OpenFile(out)
	c.Assert(err, qt.IsNil)
	defer f.Close()
	c.Assert(f.GetSheetList(), qt.DeepEquals, []string{"t1", "scalars"})
}

func TestExportVerboseAndTrace(t *testing.T) {
	isolate(t)
	c := qt.New(t)

	db := seedDatabase(c)
	dir := c.TempDir()
	traceFile := filepath.Join(dir, "trace.json")

	code, _, stderr := execApp("-v", "--trace.file", traceFile, db, filepath.Join(dir, "out.xlsx"))
	c.Assert(code, qt.Equals, 0, qt.Commentf("stderr: %s", stderr))
	c.Assert(stderr, qt.Contains, "blake2b-256")

	spans, err := os.ReadFile(traceFile)
	c.Assert(err, qt.IsNil)
	c.Assert(string(spans), qt.Contains, `"Name": "export"`)
	c.Assert(string(spans), qt.Contains, "daforfer.artifact.name")
}
