package store

import "time"

type DictionaryEntry struct {
	ID          int64      `db:"id"`
	Keyword     string     `db:"keyword"`
	StandardTag string     `db:"standard_tag"`
	Aliases     StringList `db:"aliases"`
	Category    string     `db:"category"`
	IsActive    bool       `db:"is_active"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

type EntryCreate struct {
	Keyword     string
	StandardTag string
	Aliases     []string
	Category    string
}

type EntryUpdate struct {
	Keyword     *string
	StandardTag *string
	Aliases     *[]string
	Category    *string
	IsActive    *bool
}

type ConflictRule struct {
	ID        int64      `db:"id"`
	Name      string     `db:"name"`
	Priority  StringList `db:"priority"`
	IsActive  bool       `db:"is_active"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

type Document struct {
	ID           int64      `db:"id"`
	Source       string     `db:"source"`
	SourceURL    string     `db:"source_url"`
	Title        string     `db:"title"`
	RawTags      StringList `db:"raw_tags"`
	Description  string     `db:"description"`
	StandardTags StringList `db:"standard_tags"`
	TagText      string     `db:"tag_text"`
	RetaggedAt   *time.Time `db:"retagged_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	Relevance    *float64   `db:"relevance"`
}

type DocumentCreate struct {
	Source       string
	SourceURL    string
	Title        string
	RawTags      []string
	Description  string
	StandardTags []string
}

type SearchParams struct {
	Query    string
	Tags     []string
	Page     int
	PageSize int
	Sort     string
}
