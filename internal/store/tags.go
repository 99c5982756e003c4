package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/tagcanon/internal/textnorm"
)

// StringList is a []string stored in a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan StringList: unsupported type %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("scan StringList: %w", err)
	}
	*l = out
	return nil
}

// CleanTags trims, drops empties and duplicates, and orders tags for
// storage. Tags keep their canonical spelling.
func CleanTags(tags []string) []string {
	return textnorm.Dedupe(tags)
}

// TagText is the full-text column value for a set of standard tags. Both the
// canonical and the normalized spelling are indexed.
func TagText(tags []string) string {
	clean := CleanTags(tags)
	parts := make([]string, 0, len(clean)*2)
	for _, t := range clean {
		parts = append(parts, t)
		if n := textnorm.Normalize(t); n != "" && n != strings.ToLower(t) {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}
