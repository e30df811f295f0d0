package codec

import (
	"fmt"
	"io"

	"daforfer/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec exports the snapshot's catalog as a YAML manifest
type YAMLCodec struct {
	valuesSheet string
}

// NewYAMLCodec creates a YAML manifest codec. valuesSheet must match the
// workbook codec's so sheet names line up.
func NewYAMLCodec(valuesSheet string) *YAMLCodec {
	return &YAMLCodec{valuesSheet: valuesSheet}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// manifest describes a snapshot without table cells
type manifest struct {
	Tables []manifestTable `yaml:"tables" json:"tables"`
	Values manifestValues  `yaml:"values" json:"values"`
}

type manifestTable struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Sheet       string           `yaml:"sheet" json:"sheet"`
	Rows        int              `yaml:"rows" json:"rows"`
	Columns     []manifestColumn `yaml:"columns" json:"columns"`
}

type manifestColumn struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

type manifestValues struct {
	Sheet   string          `yaml:"sheet" json:"sheet"`
	Entries []manifestValue `yaml:"entries" json:"entries"`
}

type manifestValue struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Value       any    `yaml:"value" json:"value"`
	Type        string `yaml:"type" json:"type"`
}

// buildManifest lays the snapshot out with the same sheet plan as the workbook
func buildManifest(snapshot *domain.Snapshot, valuesSheet string) manifest {
	plan := PlanSheets(snapshot, valuesSheet)

	m := manifest{
		Tables: make([]manifestTable, 0, len(snapshot.Tables)),
		Values: manifestValues{
			Sheet:   plan[len(plan)-1].Name,
			Entries: make([]manifestValue, 0, len(snapshot.Values)),
		},
	}

	for i, t := range snapshot.Tables {
		mt := manifestTable{
			Name:        t.Name,
			Description: t.Description,
			Sheet:       plan[i].Name,
			Rows:        t.Table.NumRows(),
			Columns:     make([]manifestColumn, 0, len(t.Table.Columns)),
		}
		for _, col := range t.Table.Columns {
			mt.Columns = append(mt.Columns, manifestColumn{Name: col.Name, Type: string(col.Kind)})
		}
		m.Tables = append(m.Tables, mt)
	}

	for _, v := range snapshot.Values {
		m.Values.Entries = append(m.Values.Entries, manifestValue{
			Name:        v.Name,
			Description: v.Description,
			Value:       cell(v.Value),
			Type:        v.Type,
		})
	}
	return m
}

// Export writes the manifest as YAML
func (c *YAMLCodec) Export(snapshot *domain.Snapshot, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(buildManifest(snapshot, c.valuesSheet)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}
