package tagnorm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/dictionary"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memorySource is a mutable in-memory dictionary store.
type memorySource struct {
	mu   sync.Mutex
	snap dictionary.Snapshot
	err  error
}

func (s *memorySource) LoadDictionary(context.Context) (dictionary.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append([]dictionary.Row(nil), s.snap.Rows...)
	return dictionary.Snapshot{Rows: rows, Rules: s.snap.Rules}, s.err
}

func (s *memorySource) add(r dictionary.Row) {
	s.mu.Lock()
	s.snap.Rows = append(s.snap.Rows, r)
	s.mu.Unlock()
}

func fixture() *memorySource {
	return &memorySource{snap: dictionary.Snapshot{
		Rows: []dictionary.Row{
			{ID: 1, Keyword: "Đam Mỹ", StandardTag: "Đam Mỹ", Aliases: []string{"danmei", "đam mĩ"}, Category: "origin", IsActive: true},
			{ID: 2, Keyword: "BL Hàn", StandardTag: "BL Hàn", Aliases: []string{"manhwa bl"}, Category: "origin", IsActive: true},
			{ID: 3, Keyword: "BL Nhật", StandardTag: "BL Nhật", Category: "origin", IsActive: true},
			{ID: 4, Keyword: "Sủng", StandardTag: "Sủng", Aliases: []string{"sủng ngọt"}, Category: "theme", IsActive: true},
			{ID: 5, Keyword: "NTR", StandardTag: "NTR", Aliases: []string{"netorare", "cắm sừng"}, Category: "content-warning", IsActive: true},
			{ID: 6, Keyword: "18+", StandardTag: "18+", Aliases: []string{"cảnh nóng", "h văn"}, Category: "content-warning", IsActive: true},
			{ID: 7, Keyword: "Vườn Trường", StandardTag: "Thanh Xuân Vườn Trường", Aliases: []string{"học đường"}, Category: "theme", IsActive: true},
			{ID: 8, Keyword: "Happy Ending", StandardTag: "HE", Category: "ending", IsActive: true},
			{ID: 9, Keyword: "Bad Ending", StandardTag: "BE", Category: "ending", IsActive: true},
			{ID: 10, Keyword: "Ngược", StandardTag: "Ngược", Aliases: []string{"ngược tâm"}, Category: "theme", IsActive: true},
			{ID: 11, Keyword: "Hắc Bang", StandardTag: "Hắc Bang", Category: "theme", IsActive: false},
		},
		Rules: []conflict.Rule{
			{Name: "origin", Priority: []string{"BL Hàn", "BL Nhật", "Đam Mỹ"}},
			{Name: "ending", Priority: []string{"HE", "BE"}},
		},
	}}
}

// collidingFixture adds a standard tag whose normalized text equals that of
// "Sủng".
func collidingFixture() *memorySource {
	src := fixture()
	src.add(dictionary.Row{ID: 12, Keyword: "Súng", StandardTag: "Súng", Aliases: []string{"vũ khí"}, Category: "item", IsActive: true})
	return src
}

func newEngine(t *testing.T, src dictionary.Source) *Engine {
	t.Helper()
	return NewFromSource(src, dictionary.Options{}, quietLogger())
}

func TestScenarioBasicTags(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.NormalizeTags(context.Background(), []string{"Đam Mỹ", "Sủng", "NTR"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Đam Mỹ", "NTR", "Sủng"}, got)
}

func TestScenarioConflictDropsGenericOrigin(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.NormalizeTags(context.Background(), []string{"BL Hàn", "Đam Mỹ"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BL Hàn"}, got)
}

func TestScenarioConcatenatedWordDoesNotTriggerShortTag(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.NormalizeTags(context.Background(), []string{"thanhxuanvuontruong"})
	require.NoError(t, err)
	assert.NotContains(t, got, "NTR")
	assert.Empty(t, got)
}

func TestScenarioDescriptionOnly(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.NormalizeTagsWithDescription(context.Background(), nil, "Truyện có yếu tố 18+ và cảnh nóng")
	require.NoError(t, err)
	assert.Contains(t, got, "18+")
}

func TestScenarioCacheInvalidation(t *testing.T) {
	src := fixture()
	e := newEngine(t, src)
	ctx := context.Background()

	got, err := e.NormalizeTags(ctx, []string{"Xuyên Không"})
	require.NoError(t, err)
	assert.Empty(t, got)

	e.ClearCache()
	src.add(dictionary.Row{ID: 12, Keyword: "Xuyên Không", StandardTag: "Xuyên Không", IsActive: true})
	idx, err := e.LoadDictionary(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, idx.StandardTags(), "Xuyên Không")

	got, err = e.NormalizeTags(ctx, []string{"xuyen khong"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Xuyên Không"}, got)
}

func TestNormalizeTagsEmpty(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.NormalizeTags(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestNormalizeTagsAliasesAndDedup(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.NormalizeTags(context.Background(), []string{"danmei", "ĐAM MĨ", "  dam my ", "Netorare", "HẮC BANG"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Đam Mỹ", "NTR"}, got)
}

func TestIdempotence(t *testing.T) {
	e := newEngine(t, collidingFixture())
	ctx := context.Background()
	inputs := [][]string{
		{"Đam Mỹ", "Sủng", "NTR"},
		{"BL Hàn", "Đam Mỹ", "cảnh nóng"},
		{"manhwa bl, h văn", "happy ending", "bad ending"},
		{"truyện vườn trường ngược tâm có ntr"},
		{"thanhxuanvuontruong", "danmei"},
		{"vũ khí"},
		{"Súng", "sủng ngọt"},
	}
	for _, in := range inputs {
		once, err := e.NormalizeTags(ctx, in)
		require.NoError(t, err)
		twice, err := e.NormalizeTags(ctx, once)
		require.NoError(t, err)
		assert.Subset(t, once, twice, "input %v", in)
		assert.Equal(t, once, twice, "input %v", in)
	}
}

func TestSelfRoundTrip(t *testing.T) {
	e := newEngine(t, collidingFixture())
	ctx := context.Background()
	idx, err := e.LoadDictionary(ctx, false)
	require.NoError(t, err)
	for _, tag := range idx.StandardTags() {
		got, err := e.NormalizeTags(ctx, []string{tag})
		require.NoError(t, err)
		assert.Equal(t, []string{tag}, got)
	}
}

func TestCollidingStandardTagsStayDistinct(t *testing.T) {
	e := newEngine(t, collidingFixture())
	ctx := context.Background()
	idx, err := e.LoadDictionary(ctx, false)
	require.NoError(t, err)
	require.Len(t, idx.Ambiguities, 1)
	assert.Equal(t, "Sủng", idx.Ambiguities[0].Chosen)

	got, err := e.NormalizeTags(ctx, []string{"vũ khí"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Súng"}, got)
	again, err := e.NormalizeTags(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	// Unaccented text still goes to the winner of the ambiguity.
	got, err = e.NormalizeTags(ctx, []string{"sung"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sủng"}, got)
}

func TestMutualExclusivity(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.NormalizeTags(context.Background(), []string{"Đam Mỹ", "BL Nhật", "BL Hàn", "Happy Ending", "Bad Ending"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BL Hàn", "HE"}, got)
}

func TestDeterministicUnderConcurrency(t *testing.T) {
	e := newEngine(t, fixture())
	raw := []string{"Đam Mỹ", "BL Nhật", "ntr", "sủng ngọt", "học đường"}
	desc := "Tags: Ngược, H văn | Bad Ending"
	want, err := e.NormalizeTagsWithDescription(context.Background(), raw, desc)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				e.ClearCache()
			}
			got, err := e.NormalizeTagsWithDescription(context.Background(), raw, desc)
			if err == nil {
				results[i] = got
			}
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		assert.Equal(t, want, got, "call %d", i)
	}
}

func TestExtractTagsFromDescription(t *testing.T) {
	e := newEngine(t, fixture())
	got, err := e.ExtractTagsFromDescription(context.Background(), "Giới thiệu.\nThể loại: Đam Mỹ, BL Hàn, Sủng")
	require.NoError(t, err)
	// No conflict resolution on raw extraction.
	assert.Equal(t, []string{"BL Hàn", "Đam Mỹ", "Sủng"}, got)
}

func TestDictionaryUnavailablePropagates(t *testing.T) {
	e := newEngine(t, &memorySource{err: errors.New("db down")})
	_, err := e.NormalizeTags(context.Background(), []string{"NTR"})
	assert.ErrorIs(t, err, dictionary.ErrUnavailable)
	assert.ErrorIs(t, e.WarmUpCache(context.Background()), dictionary.ErrUnavailable)
}

func TestCoerceRawTagsSkipsNonStrings(t *testing.T) {
	e := newEngine(t, fixture())
	got := e.CoerceRawTags([]any{"NTR", 42, nil, "Sủng", map[string]any{"a": 1}, 3.5})
	assert.Equal(t, []string{"NTR", "Sủng"}, got)
}

func TestExplain(t *testing.T) {
	e := newEngine(t, fixture())
	ex, err := e.Explain(context.Background(), []string{"BL Hàn", "danmei"}, "có cảnh nóng")
	require.NoError(t, err)
	assert.Equal(t, []string{"BL Hàn"}, ex.PerTag["BL Hàn"])
	assert.Equal(t, []string{"Đam Mỹ"}, ex.PerTag["danmei"])
	assert.Equal(t, []string{"18+"}, ex.Description)
	assert.Equal(t, map[string][]string{"origin": {"Đam Mỹ"}}, ex.Dropped)
	assert.Equal(t, []string{"18+", "BL Hàn"}, ex.StandardTags)
}
