package codec

import (
	"io"

	"daforfer/internal/domain"
)

// DefaultValuesSheet names the sheet holding every scalar value
const DefaultValuesSheet = "values"

// Exporter writes a snapshot in some format
type Exporter interface {
	Export(snapshot *domain.Snapshot, w io.Writer) error
	Format() string
}

// Sheet describes where one artifact lands in an exported workbook
type Sheet struct {
	Name     string `yaml:"name" json:"name"`
	Artifact string `yaml:"artifact" json:"artifact"`
	Kind     string `yaml:"kind" json:"kind"`
	Rows     int    `yaml:"rows" json:"rows"`
}

// Sheet kinds
const (
	SheetKindTable  = "table"
	SheetKindValues = "values"
)

// PlanSheets assigns a sheet name to every artifact in the snapshot: one
// sheet per table in snapshot order, then the values sheet. The values sheet
// claims its name first so tables never displace it.
func PlanSheets(snapshot *domain.Snapshot, valuesSheet string) []Sheet {
	if valuesSheet == "" {
		valuesSheet = DefaultValuesSheet
	}

	namer := NewSheetNamer()
	values := Sheet{
		Name:     namer.Assign(valuesSheet),
		Artifact: valuesSheet,
		Kind:     SheetKindValues,
		Rows:     len(snapshot.Values),
	}

	plan := make([]Sheet, 0, len(snapshot.Tables)+1)
	for _, t := range snapshot.Tables {
		plan = append(plan, Sheet{
			Name:     namer.Assign(t.Name),
			Artifact: t.Name,
			Kind:     SheetKindTable,
			Rows:     t.Table.NumRows(),
		})
	}
	return append(plan, values)
}
