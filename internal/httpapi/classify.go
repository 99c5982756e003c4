package httpapi

import (
	"net/http"

	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/matcher"
)

func (s *Server) Normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	raw := s.engine.CoerceRawTags(req.RawTags)

	var (
		tags []string
		err  error
	)
	if req.Description != nil {
		tags, err = s.engine.NormalizeTagsWithDescription(r.Context(), raw, *req.Description)
	} else {
		tags, err = s.engine.NormalizeTags(r.Context(), raw)
	}
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NormalizeResponse{StandardTags: tags, Skipped: len(req.RawTags) - len(raw)})
}

func (s *Server) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tags, err := s.engine.ExtractTagsFromDescription(r.Context(), req.Description)
	if err != nil {
		s.engineError(w, err)
		return
	}
	phrases := matcher.ExtractPhrases(req.Description)
	if phrases == nil {
		phrases = []string{}
	}
	writeJSON(w, http.StatusOK, ExtractResponse{StandardTags: tags, Phrases: phrases})
}

func (s *Server) Explain(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ex, err := s.engine.Explain(r.Context(), s.engine.CoerceRawTags(req.RawTags), getStringPtr(req.Description))
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) DictionaryStatus(w http.ResponseWriter, r *http.Request) {
	idx, err := s.engine.LoadDictionary(r.Context(), false)
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDictionaryStatus(idx))
}

// ReloadDictionary recompiles from the source immediately rather than on the
// next classification.
func (s *Server) ReloadDictionary(w http.ResponseWriter, r *http.Request) {
	idx, err := s.engine.LoadDictionary(r.Context(), true)
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.logger.Info("dictionary reloaded", "generation", idx.Generation, "entries", idx.Entries)
	writeJSON(w, http.StatusOK, toDictionaryStatus(idx))
}

func toDictionaryStatus(idx *dictionary.Index) DictionaryStatus {
	st := DictionaryStatus{
		Generation:   idx.Generation,
		BuiltAt:      idx.BuiltAt,
		Entries:      idx.Entries,
		StandardTags: len(idx.Categories),
		PhraseRules:  len(idx.PhraseRules),
		TokenRules:   len(idx.TokenRules),
		ConflictRule: len(idx.Rules),
		Ambiguities:  make([]Ambiguity, 0, len(idx.Ambiguities)),
	}
	for _, a := range idx.Ambiguities {
		st.Ambiguities = append(st.Ambiguities, Ambiguity{Trigger: a.Trigger, Chosen: a.Chosen, Rejected: a.Rejected})
	}
	return st
}
