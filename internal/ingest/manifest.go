package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashureev/kundali-rag/internal/knowledge"
	"gopkg.in/yaml.v3"
)

// Manifest lists extra corpus files with explicit metadata.
//
//	files:
//	  - path: remedies.txt
//	    metadata:
//	      planetary_factors: Saturn
type Manifest struct {
	Files []ManifestEntry `yaml:"files"`
}

// ManifestEntry is one file of a Manifest. Relative paths are resolved
// against the manifest's directory.
type ManifestEntry struct {
	Path     string         `yaml:"path"`
	Metadata map[string]any `yaml:"metadata"`
}

// LoadManifest parses the manifest at path and loads every listed file.
func LoadManifest(path string) ([]knowledge.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	var docs []knowledge.Document
	for i, entry := range m.Files {
		if entry.Path == "" {
			return nil, fmt.Errorf("manifest entry %d: path is required", i)
		}
		p := entry.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		fileDocs, err := LoadFile(p, entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}
