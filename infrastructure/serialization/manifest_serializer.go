package serialization

import (
	"encoding/json"
	"fmt"
)

// TableManifest describes how a table's rows are loaded downstream.
type TableManifest struct {
	Columns     []string `json:"columns"`
	PrimaryKey  []string `json:"primary_key"`
	Incremental bool     `json:"incremental"`
}

// ManifestSerializer handles JSON serialization of table manifests.
type ManifestSerializer struct{}

// NewManifestSerializer creates a new manifest serializer.
func NewManifestSerializer() *ManifestSerializer {
	return &ManifestSerializer{}
}

// SerializeManifest renders a manifest as indented JSON.
func (s *ManifestSerializer) SerializeManifest(m TableManifest) ([]byte, error) {
	if m.Columns == nil {
		m.Columns = []string{}
	}
	if m.PrimaryKey == nil {
		m.PrimaryKey = []string{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// DeserializeManifest parses a manifest file's contents.
func (s *ManifestSerializer) DeserializeManifest(data []byte) (TableManifest, error) {
	var m TableManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return TableManifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return m, nil
}
