package httpapi

import (
	"net/http"

	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/store"
)

// Every successful write drops the compiled index so the next
// classification sees the change.

func (s *Server) ListEntries(w http.ResponseWriter, r *http.Request, params ListEntriesParams) {
	entries, err := s.store.ListEntries(r.Context(), derefBool(params.IncludeInactive, false))
	if err != nil {
		storeError(w, err, "dictionary")
		return
	}
	resp := DictionaryEntryList{Items: make([]DictionaryEntry, 0, len(entries))}
	for i := range entries {
		resp.Items = append(resp.Items, toAPIEntry(&entries[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) GetEntry(w http.ResponseWriter, r *http.Request, id EntryId) {
	e, err := s.store.GetEntry(r.Context(), id)
	if err != nil {
		storeError(w, err, "entry")
		return
	}
	writeJSON(w, http.StatusOK, toAPIEntry(e))
}

func (s *Server) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var payload DictionaryEntryCreate
	if !decodeJSON(w, r, &payload) {
		return
	}
	e, err := s.store.CreateEntry(r.Context(), store.EntryCreate{
		Keyword:     payload.Keyword,
		StandardTag: getStringPtr(payload.StandardTag),
		Aliases:     payload.Aliases,
		Category:    getStringPtr(payload.Category),
	})
	if err != nil {
		storeError(w, err, "entry")
		return
	}
	s.engine.ClearCache()
	s.logger.Info("dictionary entry created", "id", e.ID, "standard_tag", e.StandardTag)
	writeJSON(w, http.StatusCreated, toAPIEntry(e))
}

func (s *Server) UpdateEntry(w http.ResponseWriter, r *http.Request, id EntryId) {
	var payload DictionaryEntryUpdate
	if !decodeJSON(w, r, &payload) {
		return
	}
	e, err := s.store.UpdateEntry(r.Context(), id, store.EntryUpdate{
		Keyword:     payload.Keyword,
		StandardTag: payload.StandardTag,
		Aliases:     payload.Aliases,
		Category:    payload.Category,
		IsActive:    payload.IsActive,
	})
	if err != nil {
		storeError(w, err, "entry")
		return
	}
	s.engine.ClearCache()
	s.logger.Info("dictionary entry updated", "id", e.ID)
	writeJSON(w, http.StatusOK, toAPIEntry(e))
}

func (s *Server) DeactivateEntry(w http.ResponseWriter, r *http.Request, id EntryId) {
	if err := s.store.DeactivateEntry(r.Context(), id); err != nil {
		storeError(w, err, "entry")
		return
	}
	s.engine.ClearCache()
	s.logger.Info("dictionary entry deactivated", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListConflictRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListConflictRules(r.Context(), true)
	if err != nil {
		storeError(w, err, "conflict rules")
		return
	}
	resp := ConflictRuleList{Items: make([]ConflictRule, 0, len(rules))}
	for _, cr := range rules {
		resp.Items = append(resp.Items, ConflictRule{Name: cr.Name, Priority: cr.Priority, IsActive: cr.IsActive})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) UpsertConflictRule(w http.ResponseWriter, r *http.Request, name string) {
	var payload ConflictRuleUpsert
	if !decodeJSON(w, r, &payload) {
		return
	}
	rule := conflict.Rule{Name: name, Priority: payload.Priority}
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}
	if err := s.store.UpsertConflictRule(r.Context(), rule); err != nil {
		storeError(w, err, "conflict rule")
		return
	}
	s.engine.ClearCache()
	writeJSON(w, http.StatusOK, ConflictRule{Name: rule.Name, Priority: rule.Priority, IsActive: true})
}

func toAPIEntry(e *store.DictionaryEntry) DictionaryEntry {
	aliases := []string(e.Aliases)
	if aliases == nil {
		aliases = []string{}
	}
	return DictionaryEntry{
		Id:          e.ID,
		Keyword:     e.Keyword,
		StandardTag: e.StandardTag,
		Aliases:     aliases,
		Category:    e.Category,
		IsActive:    e.IsActive,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
