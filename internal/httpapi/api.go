package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Wire types mirrored in openapi.yaml.

type HealthStatus string

const Ok HealthStatus = "ok"

type Health struct {
	Status     HealthStatus `json:"status"`
	Generation *uint64      `json:"generation,omitempty"`
}

type Error struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details *map[string]any `json:"details,omitempty"`
}

// NormalizeRequest carries raw tags loosely typed so non-string elements can
// be skipped individually instead of failing the whole request.
type NormalizeRequest struct {
	RawTags     []any   `json:"raw_tags"`
	Description *string `json:"description,omitempty"`
}

type NormalizeResponse struct {
	StandardTags []string `json:"standard_tags"`
	Skipped      int      `json:"skipped"`
}

type ExtractRequest struct {
	Description string `json:"description"`
}

type ExtractResponse struct {
	StandardTags []string `json:"standard_tags"`
	Phrases      []string `json:"phrases"`
}

type DictionaryEntry struct {
	Id          int64     `json:"id"`
	Keyword     string    `json:"keyword"`
	StandardTag string    `json:"standard_tag"`
	Aliases     []string  `json:"aliases"`
	Category    string    `json:"category"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DictionaryEntryCreate struct {
	Keyword     string   `json:"keyword"`
	StandardTag *string  `json:"standard_tag,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Category    *string  `json:"category,omitempty"`
}

type DictionaryEntryUpdate struct {
	Keyword     *string   `json:"keyword,omitempty"`
	StandardTag *string   `json:"standard_tag,omitempty"`
	Aliases     *[]string `json:"aliases,omitempty"`
	Category    *string   `json:"category,omitempty"`
	IsActive    *bool     `json:"is_active,omitempty"`
}

type DictionaryEntryList struct {
	Items []DictionaryEntry `json:"items"`
}

type ConflictRule struct {
	Name     string   `json:"name"`
	Priority []string `json:"priority"`
	IsActive bool     `json:"is_active"`
}

type ConflictRuleList struct {
	Items []ConflictRule `json:"items"`
}

type ConflictRuleUpsert struct {
	Priority []string `json:"priority"`
}

type Ambiguity struct {
	Trigger  string   `json:"trigger"`
	Chosen   string   `json:"chosen"`
	Rejected []string `json:"rejected"`
}

type DictionaryStatus struct {
	Generation   uint64      `json:"generation"`
	BuiltAt      time.Time   `json:"built_at"`
	Entries      int         `json:"entries"`
	StandardTags int         `json:"standard_tags"`
	PhraseRules  int         `json:"phrase_rules"`
	TokenRules   int         `json:"token_rules"`
	ConflictRule int         `json:"conflict_rules"`
	Ambiguities  []Ambiguity `json:"ambiguities"`
}

type Document struct {
	Id           int64      `json:"id"`
	Source       string     `json:"source"`
	SourceUrl    string     `json:"source_url"`
	Title        string     `json:"title"`
	RawTags      []string   `json:"raw_tags"`
	Description  string     `json:"description"`
	StandardTags []string   `json:"standard_tags"`
	Relevance    *float64   `json:"relevance,omitempty"`
	RetaggedAt   *time.Time `json:"retagged_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type DocumentCreate struct {
	Source      string  `json:"source"`
	SourceUrl   string  `json:"source_url"`
	Title       string  `json:"title"`
	RawTags     []any   `json:"raw_tags"`
	Description *string `json:"description,omitempty"`
}

type DocumentSearchResponse struct {
	Items    []Document `json:"items"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Total    int        `json:"total"`
}

type Tag struct {
	Name string `json:"name"`
}

type TagListResponse struct {
	Items []Tag `json:"items"`
	Total int   `json:"total"`
}

type SearchDocumentsParamsSort string

const (
	SortNewest    SearchDocumentsParamsSort = "newest"
	SortOldest    SearchDocumentsParamsSort = "oldest"
	SortRelevance SearchDocumentsParamsSort = "relevance"
)

type SearchDocumentsParams struct {
	Q        *string                    `form:"q,omitempty" json:"q,omitempty"`
	Tag      *[]string                  `form:"tag,omitempty" json:"tag,omitempty"`
	Page     *int                       `form:"page,omitempty" json:"page,omitempty"`
	PageSize *int                       `form:"pageSize,omitempty" json:"pageSize,omitempty"`
	Sort     *SearchDocumentsParamsSort `form:"sort,omitempty" json:"sort,omitempty"`
}

type ListEntriesParams struct {
	IncludeInactive *bool `form:"includeInactive,omitempty" json:"includeInactive,omitempty"`
}

type ListTagsParams struct {
	Prefix   *string `form:"prefix,omitempty" json:"prefix,omitempty"`
	Page     *int    `form:"page,omitempty" json:"page,omitempty"`
	PageSize *int    `form:"pageSize,omitempty" json:"pageSize,omitempty"`
}

type EntryId = int64

type DocumentId = int64

// ServerInterface is implemented by *Server; the wrapper binds path and
// query parameters before dispatching.
type ServerInterface interface {
	ListEntries(w http.ResponseWriter, r *http.Request, params ListEntriesParams)
	GetEntry(w http.ResponseWriter, r *http.Request, id EntryId)
	UpdateEntry(w http.ResponseWriter, r *http.Request, id EntryId)
	DeactivateEntry(w http.ResponseWriter, r *http.Request, id EntryId)
	SearchDocuments(w http.ResponseWriter, r *http.Request, params SearchDocumentsParams)
	GetDocument(w http.ResponseWriter, r *http.Request, id DocumentId)
	UpsertConflictRule(w http.ResponseWriter, r *http.Request, name string)
	ListTags(w http.ResponseWriter, r *http.Request, params ListTagsParams)
}

type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) ListEntries(w http.ResponseWriter, r *http.Request) {
	var params ListEntriesParams
	if err := runtime.BindQueryParameter("form", true, false, "includeInactive", r.URL.Query(), &params.IncludeInactive); err != nil {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("invalid format for parameter includeInactive: %w", err))
		return
	}
	siw.Handler.ListEntries(w, r, params)
}

func (siw *ServerInterfaceWrapper) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.Handler.GetEntry(w, r, id)
}

func (siw *ServerInterfaceWrapper) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.Handler.UpdateEntry(w, r, id)
}

func (siw *ServerInterfaceWrapper) DeactivateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.Handler.DeactivateEntry(w, r, id)
}

func (siw *ServerInterfaceWrapper) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	var params SearchDocumentsParams
	query := r.URL.Query()
	for name, dest := range map[string]any{
		"q":        &params.Q,
		"tag":      &params.Tag,
		"page":     &params.Page,
		"pageSize": &params.PageSize,
		"sort":     &params.Sort,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			siw.ErrorHandlerFunc(w, r, fmt.Errorf("invalid format for parameter %s: %w", name, err))
			return
		}
	}
	siw.Handler.SearchDocuments(w, r, params)
}

func (siw *ServerInterfaceWrapper) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.Handler.GetDocument(w, r, id)
}

func (siw *ServerInterfaceWrapper) UpsertConflictRule(w http.ResponseWriter, r *http.Request) {
	var name string
	err := runtime.BindStyledParameterWithOptions("simple", "name", chi.URLParam(r, "name"), &name,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("invalid format for parameter name: %w", err))
		return
	}
	siw.Handler.UpsertConflictRule(w, r, name)
}

func (siw *ServerInterfaceWrapper) ListTags(w http.ResponseWriter, r *http.Request) {
	var params ListTagsParams
	query := r.URL.Query()
	for name, dest := range map[string]any{
		"prefix":   &params.Prefix,
		"page":     &params.Page,
		"pageSize": &params.PageSize,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			siw.ErrorHandlerFunc(w, r, fmt.Errorf("invalid format for parameter %s: %w", name, err))
			return
		}
	}
	siw.Handler.ListTags(w, r, params)
}

func (siw *ServerInterfaceWrapper) bindID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, fmt.Errorf("invalid format for parameter id: %w", err))
		return 0, false
	}
	return id, true
}
