package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/tagcanon/internal/config"
	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/dictionary"
	"github.com/example/tagcanon/internal/store"
	"github.com/example/tagcanon/internal/tagnorm"
)

// fakeStore keeps dictionary entries, rules and documents in memory and
// doubles as the engine's dictionary source.
type fakeStore struct {
	mu      sync.Mutex
	entries []store.DictionaryEntry
	rules   []store.ConflictRule
	docs    []store.Document
	pingErr error
}

func newFakeStore() *fakeStore {
	now := time.Now()
	return &fakeStore{
		entries: []store.DictionaryEntry{
			{ID: 1, Keyword: "Đam Mỹ", StandardTag: "Đam Mỹ", Aliases: store.StringList{"danmei"}, Category: "origin", IsActive: true, CreatedAt: now},
			{ID: 2, Keyword: "BL Hàn", StandardTag: "BL Hàn", Category: "origin", IsActive: true, CreatedAt: now},
			{ID: 3, Keyword: "Sủng", StandardTag: "Sủng", Category: "theme", IsActive: true, CreatedAt: now},
			{ID: 4, Keyword: "NTR", StandardTag: "NTR", Aliases: store.StringList{"netorare"}, IsActive: true, CreatedAt: now},
		},
		rules: []store.ConflictRule{
			{ID: 1, Name: "origin", Priority: store.StringList{"BL Hàn", "Đam Mỹ"}, IsActive: true},
		},
	}
}

func (f *fakeStore) LoadDictionary(context.Context) (dictionary.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return store.SnapshotOf(append([]store.DictionaryEntry(nil), f.entries...), f.rules), nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) ListEntries(_ context.Context, includeInactive bool) ([]store.DictionaryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.DictionaryEntry
	for _, e := range f.entries {
		if e.IsActive || includeInactive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetEntry(_ context.Context, id int64) (*store.DictionaryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			e := f.entries[i]
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateEntry(_ context.Context, in store.EntryCreate) (*store.DictionaryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	std := in.StandardTag
	if std == "" {
		std = in.Keyword
	}
	if std == "" {
		return nil, dictionary.ErrMalformedEntry
	}
	e := store.DictionaryEntry{ID: int64(len(f.entries) + 1), Keyword: in.Keyword, StandardTag: std, Aliases: in.Aliases, Category: in.Category, IsActive: true}
	f.entries = append(f.entries, e)
	return &e, nil
}

func (f *fakeStore) UpdateEntry(ctx context.Context, id int64, upd store.EntryUpdate) (*store.DictionaryEntry, error) {
	f.mu.Lock()
	for i := range f.entries {
		if f.entries[i].ID != id {
			continue
		}
		if upd.Aliases != nil {
			f.entries[i].Aliases = *upd.Aliases
		}
		if upd.IsActive != nil {
			f.entries[i].IsActive = *upd.IsActive
		}
	}
	f.mu.Unlock()
	return f.GetEntry(ctx, id)
}

func (f *fakeStore) DeactivateEntry(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id && f.entries[i].IsActive {
			f.entries[i].IsActive = false
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListConflictRules(context.Context, bool) ([]store.ConflictRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ConflictRule(nil), f.rules...), nil
}

func (f *fakeStore) UpsertConflictRule(_ context.Context, rule conflict.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].Name == rule.Name {
			f.rules[i].Priority = rule.Priority
			return nil
		}
	}
	f.rules = append(f.rules, store.ConflictRule{ID: int64(len(f.rules) + 1), Name: rule.Name, Priority: rule.Priority, IsActive: true})
	return nil
}

func (f *fakeStore) CreateDocument(_ context.Context, in store.DocumentCreate) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.Source == in.Source && d.SourceURL == in.SourceURL {
			return nil, store.ErrDuplicate
		}
	}
	d := store.Document{ID: int64(len(f.docs) + 1), Source: in.Source, SourceURL: in.SourceURL, Title: in.Title,
		RawTags: in.RawTags, Description: in.Description, StandardTags: store.CleanTags(in.StandardTags)}
	f.docs = append(f.docs, d)
	return &d, nil
}

func (f *fakeStore) GetDocument(_ context.Context, id int64) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.docs {
		if f.docs[i].ID == id {
			d := f.docs[i]
			return &d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) SearchDocuments(_ context.Context, params store.SearchParams) ([]store.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Document
	for _, d := range f.docs {
		if hasAll(d.StandardTags, params.Tags) {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListTags(context.Context, string, int, int) ([]string, int, error) {
	return []string{"NTR"}, 1, nil
}

func hasAll(have []string, want []string) bool {
	set := map[string]bool{}
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func newTestServer(t *testing.T, mode config.AuthMode) (http.Handler, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := tagnorm.NewFromSource(fs, dictionary.Options{}, logger)
	keys := &APIKeyStore{byKey: map[string]*APIKey{
		"classify": {ID: "crawler", Permissions: []string{PermCanClassify}},
		"admin":    {ID: "ops", Permissions: []string{PermCanAdmin}},
	}}
	cfg := &config.Config{AuthMode: mode}
	return NewRouter(cfg, engine, fs, keys, logger), fs
}

func do(t *testing.T, h http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNormalizeEndpoint(t *testing.T) {
	h, _ := newTestServer(t, config.AuthAPIKey)

	rec := do(t, h, http.MethodPost, "/api/normalize", "classify", map[string]any{
		"raw_tags": []any{"Đam mỹ", "sủng", 42, "NTR", nil},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp NormalizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"Đam Mỹ", "NTR", "Sủng"}
	if len(resp.StandardTags) != len(want) {
		t.Fatalf("expected %v, got %v", want, resp.StandardTags)
	}
	for i := range want {
		if resp.StandardTags[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, resp.StandardTags)
		}
	}
	if resp.Skipped != 2 {
		t.Fatalf("expected 2 skipped, got %d", resp.Skipped)
	}
}

func TestNormalizeAppliesConflictRules(t *testing.T) {
	h, _ := newTestServer(t, config.AuthNone)

	rec := do(t, h, http.MethodPost, "/api/normalize", "", map[string]any{
		"raw_tags":    []any{"Đam Mỹ"},
		"description": "Thể loại: BL Hàn, netorare",
	})
	var resp NormalizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.StandardTags) != 2 || resp.StandardTags[0] != "BL Hàn" || resp.StandardTags[1] != "NTR" {
		t.Fatalf("unexpected tags %v", resp.StandardTags)
	}
}

func TestExtractEndpoint(t *testing.T) {
	h, _ := newTestServer(t, config.AuthNone)

	rec := do(t, h, http.MethodPost, "/api/extract", "", ExtractRequest{Description: "Thể loại: Đam Mỹ, Sủng"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ExtractResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.StandardTags) != 2 || resp.StandardTags[0] != "Đam Mỹ" || resp.StandardTags[1] != "Sủng" {
		t.Fatalf("unexpected tags %v", resp.StandardTags)
	}
	if len(resp.Phrases) == 0 {
		t.Fatalf("expected candidate phrases")
	}
}

func TestNormalizeRequiresClassifyPermission(t *testing.T) {
	h, _ := newTestServer(t, config.AuthAPIKey)

	if rec := do(t, h, http.MethodPost, "/api/normalize", "", map[string]any{"raw_tags": []any{}}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/dictionary/reload", "classify", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestDictionaryWriteInvalidatesCache(t *testing.T) {
	h, _ := newTestServer(t, config.AuthAPIKey)

	body := map[string]any{"raw_tags": []any{"ngược tâm"}}
	rec := do(t, h, http.MethodPost, "/api/normalize", "admin", body)
	var before NormalizeResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &before)
	if len(before.StandardTags) != 0 {
		t.Fatalf("expected no tags before entry exists, got %v", before.StandardTags)
	}

	rec = do(t, h, http.MethodPost, "/api/dictionary", "admin", DictionaryEntryCreate{Keyword: "Ngược", Aliases: []string{"ngược tâm"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/normalize", "admin", body)
	var after NormalizeResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &after)
	if len(after.StandardTags) != 1 || after.StandardTags[0] != "Ngược" {
		t.Fatalf("expected new entry to apply, got %v", after.StandardTags)
	}

	if rec := do(t, h, http.MethodDelete, "/api/dictionary/5", "admin", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/normalize", "admin", body)
	var deactivated NormalizeResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &deactivated)
	if len(deactivated.StandardTags) != 0 {
		t.Fatalf("expected deactivated entry to stop matching, got %v", deactivated.StandardTags)
	}
}

func TestDictionaryEntryNotFoundAndBadID(t *testing.T) {
	h, _ := newTestServer(t, config.AuthNone)

	if rec := do(t, h, http.MethodGet, "/api/dictionary/999", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/dictionary/abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDictionaryReloadReportsStatus(t *testing.T) {
	h, _ := newTestServer(t, config.AuthNone)

	rec := do(t, h, http.MethodPost, "/api/dictionary/reload", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st DictionaryStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Entries != 4 || st.StandardTags != 4 || st.ConflictRule != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestConflictRuleUpsert(t *testing.T) {
	h, fs := newTestServer(t, config.AuthNone)

	rec := do(t, h, http.MethodPut, "/api/conflict-rules/origin", "", ConflictRuleUpsert{Priority: []string{"Đam Mỹ", "BL Hàn"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fs.rules[0].Priority[0] != "Đam Mỹ" {
		t.Fatalf("rule not updated: %v", fs.rules[0].Priority)
	}
	if rec := do(t, h, http.MethodPut, "/api/conflict-rules/bad", "", ConflictRuleUpsert{Priority: []string{"solo"}}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for single-member rule, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/normalize", "", map[string]any{"raw_tags": []any{"BL Hàn", "Đam Mỹ"}})
	var resp NormalizeResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.StandardTags) != 1 || resp.StandardTags[0] != "Đam Mỹ" {
		t.Fatalf("expected new priority to apply, got %v", resp.StandardTags)
	}
}

func TestCreateAndSearchDocuments(t *testing.T) {
	h, _ := newTestServer(t, config.AuthNone)

	doc := DocumentCreate{Source: "site-a", SourceUrl: "https://a.example/1", Title: "Truyện", RawTags: []any{"danmei", "NTR"}}
	rec := do(t, h, http.MethodPost, "/api/documents", "", doc)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created Document
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(created.StandardTags) != 2 || created.StandardTags[0] != "Đam Mỹ" {
		t.Fatalf("unexpected standard tags %v", created.StandardTags)
	}

	if rec := do(t, h, http.MethodPost, "/api/documents", "", doc); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/documents?tag=NTR&page=1", "", nil)
	var found DocumentSearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &found); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if found.Total != 1 || found.Items[0].Id != created.Id {
		t.Fatalf("unexpected search result %+v", found)
	}

	if rec := do(t, h, http.MethodGet, "/api/documents?page=x", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rec.Code)
	}
}

func TestUnavailableDictionaryReturns503(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := dictionary.SourceFunc(func(context.Context) (dictionary.Snapshot, error) {
		return dictionary.Snapshot{}, errors.New("connection refused")
	})
	h := NewRouter(&config.Config{AuthMode: config.AuthNone}, tagnorm.NewFromSource(src, dictionary.Options{}, logger), nil, nil, logger)

	if rec := do(t, h, http.MethodPost, "/api/normalize", "", map[string]any{"raw_tags": []any{"NTR"}}); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readyz 503, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/documents", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("document routes should not be mounted without a store, got %d", rec.Code)
	}
}

func TestReadyzAndMetrics(t *testing.T) {
	h, fs := newTestServer(t, config.AuthNone)

	if rec := do(t, h, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	fs.pingErr = errors.New("db down")
	if rec := do(t, h, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("tagcanon_http_requests_total")) {
		t.Fatalf("metrics missing request counter")
	}
}
