package dictionary

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/tagcanon/internal/conflict"
)

type fileEntry struct {
	Keyword     string   `yaml:"keyword"`
	StandardTag string   `yaml:"standard_tag"`
	Aliases     []string `yaml:"aliases"`
	Category    string   `yaml:"category"`
	Active      *bool    `yaml:"active"`
}

type fileDocument struct {
	Entries       []fileEntry     `yaml:"entries"`
	ConflictRules []conflict.Rule `yaml:"conflict_rules"`
}

// FileSource reads the dictionary from a YAML file. Entries are active unless
// marked `active: false`; a missing standard_tag defaults to the keyword.
type FileSource struct {
	Path string
}

func (f FileSource) LoadDictionary(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read dictionary file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a dictionary document. Row IDs are 1-based positions.
func ParseYAML(data []byte) (Snapshot, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("parse dictionary file: %w", err)
	}
	snap := Snapshot{Rows: make([]Row, 0, len(doc.Entries)), Rules: doc.ConflictRules}
	for i, e := range doc.Entries {
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		std := e.StandardTag
		if std == "" {
			std = e.Keyword
		}
		snap.Rows = append(snap.Rows, Row{
			ID:          int64(i + 1),
			Keyword:     e.Keyword,
			StandardTag: std,
			Aliases:     e.Aliases,
			Category:    e.Category,
			IsActive:    active,
		})
	}
	return snap, nil
}

// MarshalYAML renders a snapshot in the format FileSource reads.
func MarshalYAML(snap Snapshot) ([]byte, error) {
	doc := fileDocument{ConflictRules: snap.Rules}
	for _, r := range snap.Rows {
		active := r.IsActive
		doc.Entries = append(doc.Entries, fileEntry{
			Keyword:     r.Keyword,
			StandardTag: r.StandardTag,
			Aliases:     r.Aliases,
			Category:    r.Category,
			Active:      &active,
		})
	}
	return yaml.Marshal(doc)
}
