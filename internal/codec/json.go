package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"daforfer/internal/domain"
)

// JSONCodec exports the snapshot's catalog as a JSON manifest
type JSONCodec struct {
	valuesSheet string
}

// NewJSONCodec creates a JSON manifest codec
func NewJSONCodec(valuesSheet string) *JSONCodec {
	return &JSONCodec{valuesSheet: valuesSheet}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Export writes the manifest as indented JSON
func (c *JSONCodec) Export(snapshot *domain.Snapshot, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(buildManifest(snapshot, c.valuesSheet)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
