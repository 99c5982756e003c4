package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/dictionary"
)

const entryColumns = "id, keyword, standard_tag, aliases, category, is_active, created_at, updated_at"

// ListEntries returns dictionary entries in registration order.
func (s *Store) ListEntries(ctx context.Context, includeInactive bool) ([]DictionaryEntry, error) {
	query := "SELECT " + entryColumns + " FROM dictionary_entry"
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY id"
	var out []DictionaryEntry
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*DictionaryEntry, error) {
	var e DictionaryEntry
	err := s.db.GetContext(ctx, &e, "SELECT "+entryColumns+" FROM dictionary_entry WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateEntry(ctx context.Context, in EntryCreate) (*DictionaryEntry, error) {
	keyword := strings.TrimSpace(in.Keyword)
	std := strings.TrimSpace(in.StandardTag)
	if std == "" {
		std = keyword
	}
	if std == "" {
		return nil, fmt.Errorf("%w: keyword or standard tag is required", dictionary.ErrMalformedEntry)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO dictionary_entry (keyword, standard_tag, aliases, category, is_active) VALUES (?, ?, ?, ?, TRUE)",
		keyword, std, StringList(cleanAliases(in.Aliases)), strings.TrimSpace(in.Category))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetEntry(ctx, id)
}

func (s *Store) UpdateEntry(ctx context.Context, id int64, upd EntryUpdate) (*DictionaryEntry, error) {
	setParts := []string{}
	args := []any{}
	if upd.Keyword != nil {
		setParts = append(setParts, "keyword = ?")
		args = append(args, strings.TrimSpace(*upd.Keyword))
	}
	if upd.StandardTag != nil {
		std := strings.TrimSpace(*upd.StandardTag)
		if std == "" {
			return nil, fmt.Errorf("%w: standard tag cannot be empty", dictionary.ErrMalformedEntry)
		}
		setParts = append(setParts, "standard_tag = ?")
		args = append(args, std)
	}
	if upd.Aliases != nil {
		setParts = append(setParts, "aliases = ?")
		args = append(args, StringList(cleanAliases(*upd.Aliases)))
	}
	if upd.Category != nil {
		setParts = append(setParts, "category = ?")
		args = append(args, strings.TrimSpace(*upd.Category))
	}
	if upd.IsActive != nil {
		setParts = append(setParts, "is_active = ?")
		args = append(args, *upd.IsActive)
	}

	if len(setParts) > 0 {
		setParts = append(setParts, "updated_at = NOW()")
		query := "UPDATE dictionary_entry SET " + strings.Join(setParts, ", ") + " WHERE id = ?"
		args = append(args, id)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}
	return s.GetEntry(ctx, id)
}

// DeactivateEntry soft-deletes an entry; it is kept for audit.
func (s *Store) DeactivateEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE dictionary_entry SET is_active = FALSE, updated_at = NOW() WHERE id = ? AND is_active = TRUE", id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListConflictRules(ctx context.Context, includeInactive bool) ([]ConflictRule, error) {
	query := "SELECT id, name, priority, is_active, created_at, updated_at FROM conflict_rule"
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY id"
	var out []ConflictRule
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertConflictRule creates or replaces the exclusivity group called name.
func (s *Store) UpsertConflictRule(ctx context.Context, rule conflict.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conflict_rule (name, priority, is_active) VALUES (?, ?, TRUE)
		ON DUPLICATE KEY UPDATE priority = VALUES(priority), is_active = TRUE, updated_at = NOW()`,
		rule.Name, StringList(rule.Priority))
	return err
}

// LoadDictionary reads the active dictionary and conflict rules.
func (s *Store) LoadDictionary(ctx context.Context) (dictionary.Snapshot, error) {
	entries, err := s.ListEntries(ctx, false)
	if err != nil {
		return dictionary.Snapshot{}, fmt.Errorf("list dictionary entries: %w", err)
	}
	rules, err := s.ListConflictRules(ctx, false)
	if err != nil {
		return dictionary.Snapshot{}, fmt.Errorf("list conflict rules: %w", err)
	}
	return SnapshotOf(entries, rules), nil
}

// SnapshotOf converts stored rows into a compile input.
func SnapshotOf(entries []DictionaryEntry, rules []ConflictRule) dictionary.Snapshot {
	snap := dictionary.Snapshot{
		Rows:  make([]dictionary.Row, 0, len(entries)),
		Rules: make([]conflict.Rule, 0, len(rules)),
	}
	for _, e := range entries {
		snap.Rows = append(snap.Rows, dictionary.Row{
			ID:          e.ID,
			Keyword:     e.Keyword,
			StandardTag: e.StandardTag,
			Aliases:     []string(e.Aliases),
			Category:    e.Category,
			IsActive:    e.IsActive,
		})
	}
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		snap.Rules = append(snap.Rules, conflict.Rule{Name: r.Name, Priority: []string(r.Priority)})
	}
	return snap
}

func cleanAliases(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
