package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("not found")
var ErrDuplicate = errors.New("duplicate")

const defaultPageSize = 30

var allowedSort = map[string]string{
	"newest":    "d.created_at DESC, d.id DESC",
	"oldest":    "d.created_at ASC, d.id ASC",
	"relevance": "relevance DESC, d.created_at DESC",
}

const documentColumns = "d.id, d.source, d.source_url, d.title, d.raw_tags, d.description, d.standard_tags, d.tag_text, d.retagged_at, d.created_at, d.updated_at"

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateDocument stores a scraped document together with the standard tags
// computed for it by the caller.
func (s *Store) CreateDocument(ctx context.Context, in DocumentCreate) (*Document, error) {
	tags := CleanTags(in.StandardTags)
	tagText := TagText(tags)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `INSERT INTO document (source, source_url, title, raw_tags, description, standard_tags, tag_text, retagged_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, NOW())`
	res, err := tx.ExecContext(ctx, query,
		in.Source, in.SourceURL, in.Title, StringList(in.RawTags), in.Description, StringList(tags), tagText,
	)
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := s.replaceTagsTx(ctx, tx, id, tags); err != nil {
		return nil, err
	}

	doc, err := s.fetchDocument(ctx, tx, "d.id = ?", id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) fetchDocument(ctx context.Context, tx *sqlx.Tx, where string, arg any) (*Document, error) {
	query := "SELECT " + documentColumns + " FROM document d WHERE " + where
	var d Document
	var err error
	if tx != nil {
		err = tx.GetContext(ctx, &d, query, arg)
	} else {
		err = s.db.GetContext(ctx, &d, query, arg)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return s.fetchDocument(ctx, nil, "d.id = ?", id)
}

// ListDocumentsAfter pages through documents in id order for batch jobs.
func (s *Store) ListDocumentsAfter(ctx context.Context, afterID int64, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	query := "SELECT " + documentColumns + " FROM document d WHERE d.id > ? ORDER BY d.id LIMIT ?"
	var docs []Document
	if err := s.db.SelectContext(ctx, &docs, query, afterID, limit); err != nil {
		return nil, err
	}
	return docs, nil
}

// SetStandardTags replaces a document's computed tags. Raw tags and the
// description are left untouched.
func (s *Store) SetStandardTags(ctx context.Context, id int64, tags []string) error {
	tags = CleanTags(tags)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE document SET standard_tags = ?, tag_text = ?, retagged_at = NOW(), updated_at = NOW() WHERE id = ?",
		StringList(tags), TagText(tags), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, err := s.fetchDocument(ctx, tx, "d.id = ?", id); err != nil {
			return err
		}
	}
	if err := s.replaceTagsTx(ctx, tx, id, tags); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) replaceTagsTx(ctx context.Context, tx *sqlx.Tx, documentID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM document_tag WHERE document_id = ?", documentID); err != nil {
		return err
	}
	for _, t := range tags {
		res, err := tx.ExecContext(ctx, "INSERT INTO tag (name) VALUES (?) ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)", t)
		if err != nil {
			return err
		}
		tagID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "INSERT IGNORE INTO document_tag (document_id, tag_id) VALUES (?, ?)", documentID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// SearchDocuments filters by standard tags (all must be present) and an
// optional full-text query over title, description and tag text.
func (s *Store) SearchDocuments(ctx context.Context, params SearchParams) ([]Document, int, error) {
	page := params.Page
	if page <= 0 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	offset := (page - 1) * pageSize

	where := []string{"1=1"}
	args := []any{}

	relevanceSelect := ""
	if params.Query != "" {
		where = append(where, "MATCH(d.title, d.description, d.tag_text) AGAINST (? IN NATURAL LANGUAGE MODE)")
		args = append(args, params.Query)
		relevanceSelect = ", MATCH(d.title, d.description, d.tag_text) AGAINST (? IN NATURAL LANGUAGE MODE) AS relevance"
	}

	join := ""
	having := ""
	if tags := CleanTags(params.Tags); len(tags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
		join = "JOIN document_tag dt ON dt.document_id = d.id JOIN tag t ON t.id = dt.tag_id"
		where = append(where, "t.name IN ("+placeholders+")")
		for _, t := range tags {
			args = append(args, t)
		}
		having = "HAVING COUNT(DISTINCT t.name) = ?"
		args = append(args, len(tags))
	}

	orderClause := allowedSort[params.Sort]
	if orderClause == "" || (params.Sort == "relevance" && params.Query == "") {
		orderClause = allowedSort["newest"]
	}

	base := "FROM document d " + join + " WHERE " + strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(DISTINCT d.id) " + base
	if having != "" {
		countQuery = "SELECT COUNT(*) FROM (SELECT d.id " + base + " GROUP BY d.id " + having + ") sub"
	}
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	selectQuery := "SELECT " + documentColumns + relevanceSelect + " " + base + " GROUP BY d.id " + having + " ORDER BY " + orderClause + " LIMIT ? OFFSET ?"
	listArgs := []any{}
	if relevanceSelect != "" {
		listArgs = append(listArgs, params.Query)
	}
	listArgs = append(listArgs, args...)
	listArgs = append(listArgs, pageSize, offset)

	var rows []Document
	if err := s.db.SelectContext(ctx, &rows, selectQuery, listArgs...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListTags lists standard tags in use on at least one document.
func (s *Store) ListTags(ctx context.Context, prefix string, page, pageSize int) ([]string, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	where := "WHERE EXISTS (SELECT 1 FROM document_tag dt WHERE dt.tag_id = tag.id)"
	args := []any{}
	if prefix != "" {
		where += " AND name LIKE ?"
		args = append(args, prefix+"%")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tag "+where, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT name FROM tag " + where + " ORDER BY name LIMIT ? OFFSET ?"
	argsWithPaging := append(append([]any{}, args...), pageSize, offset)
	var tags []string
	if err := s.db.SelectContext(ctx, &tags, query, argsWithPaging...); err != nil {
		return nil, 0, err
	}
	return tags, total, nil
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
