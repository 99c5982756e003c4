package httpapi

import (
	"net/http"
	"strings"

	"github.com/example/tagcanon/internal/store"
)

func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request, params SearchDocumentsParams) {
	sp := store.SearchParams{
		Query:    getStringPtr(params.Q),
		Tags:     derefStringSlice(params.Tag),
		Page:     derefInt(params.Page, 1),
		PageSize: derefInt(params.PageSize, 30),
		Sort:     string(derefSort(params.Sort)),
	}
	s.logger.Info("search", "query", sp.Query, "tags", sp.Tags, "page", sp.Page, "pageSize", sp.PageSize, "sort", sp.Sort)
	docs, total, err := s.store.SearchDocuments(r.Context(), sp)
	if err != nil {
		storeError(w, err, "documents")
		return
	}
	resp := DocumentSearchResponse{Items: make([]Document, 0, len(docs)), Page: sp.Page, PageSize: sp.PageSize, Total: total}
	for i := range docs {
		resp.Items = append(resp.Items, toAPIDocument(&docs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request, id DocumentId) {
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		storeError(w, err, "document")
		return
	}
	writeJSON(w, http.StatusOK, toAPIDocument(doc))
}

// CreateDocument classifies the scraped tags and description, then stores
// the document with its standard tags.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var payload DocumentCreate
	if !decodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Source) == "" || strings.TrimSpace(payload.SourceUrl) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "source and source_url are required", nil)
		return
	}
	raw := s.engine.CoerceRawTags(payload.RawTags)
	description := getStringPtr(payload.Description)
	tags, err := s.engine.NormalizeTagsWithDescription(r.Context(), raw, description)
	if err != nil {
		s.engineError(w, err)
		return
	}
	doc, err := s.store.CreateDocument(r.Context(), store.DocumentCreate{
		Source:       strings.TrimSpace(payload.Source),
		SourceURL:    strings.TrimSpace(payload.SourceUrl),
		Title:        payload.Title,
		RawTags:      raw,
		Description:  description,
		StandardTags: tags,
	})
	if err != nil {
		storeError(w, err, "document")
		return
	}
	writeJSON(w, http.StatusCreated, toAPIDocument(doc))
}

func (s *Server) ListTags(w http.ResponseWriter, r *http.Request, params ListTagsParams) {
	page := derefInt(params.Page, 1)
	size := derefInt(params.PageSize, 100)
	tags, total, err := s.store.ListTags(r.Context(), getStringPtr(params.Prefix), page, size)
	if err != nil {
		storeError(w, err, "tags")
		return
	}
	resp := TagListResponse{Items: make([]Tag, 0, len(tags)), Total: total}
	for _, t := range tags {
		resp.Items = append(resp.Items, Tag{Name: t})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toAPIDocument(d *store.Document) Document {
	return Document{
		Id:           d.ID,
		Source:       d.Source,
		SourceUrl:    d.SourceURL,
		Title:        d.Title,
		RawTags:      nonNil(d.RawTags),
		Description:  d.Description,
		StandardTags: nonNil(d.StandardTags),
		Relevance:    d.Relevance,
		RetaggedAt:   d.RetaggedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func nonNil(l store.StringList) []string {
	if l == nil {
		return []string{}
	}
	return l
}
