package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/rlmcore/docstore"
)

// DBPool is the subset of pgxpool.Pool this store needs, mockable with
// github.com/pashagolub/pgxmock in tests.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements docstore.Store over PostgreSQL.
type Store struct {
	pool DBPool
}

// Options configures New.
type Options struct {
	ConnString string
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: connecting: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool (or mock), for tests.
func NewWithPool(pool DBPool) *Store {
	return &Store{pool: pool}
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			row_id        TEXT PRIMARY KEY,
			doc_id        TEXT NOT NULL,
			label         TEXT NOT NULL,
			source_url    TEXT NOT NULL,
			path          TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			doc_type      TEXT NOT NULL,
			url_context   TEXT,
			excerpts      JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			superseded_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_documents_label ON documents (label, superseded_at, created_at);
		CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents (doc_id, superseded_at);

		CREATE TABLE IF NOT EXISTS qa_records (
			id               TEXT PRIMARY KEY,
			topic            TEXT NOT NULL,
			question         TEXT NOT NULL,
			answer           TEXT NOT NULL,
			cited_urls       JSONB NOT NULL,
			iterations       INTEGER NOT NULL,
			script_calls     INTEGER NOT NULL,
			truncated        BOOLEAN NOT NULL,
			candidate_hashes JSONB NOT NULL DEFAULT '[]',
			ts               TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_qa_records_topic ON qa_records (topic, ts);
	`
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("postgres docstore: creating schema: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, doc docstore.Document, rowID string) (string, error) {
	docID := docstore.DeriveDocID(doc.Label, doc.SourceURL, doc.Path)

	excerptsJSON, err := json.Marshal(doc.Excerpts)
	if err != nil {
		return "", fmt.Errorf("postgres docstore: marshaling excerpts: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE documents SET superseded_at = now() WHERE doc_id = $1 AND superseded_at IS NULL`,
		docID,
	); err != nil {
		return "", fmt.Errorf("postgres docstore: superseding prior document: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO documents (row_id, doc_id, label, source_url, path, content_hash, doc_type, url_context, excerpts, created_at, superseded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL)`,
		rowID, docID, doc.Label, doc.SourceURL, doc.Path, doc.ContentHash, string(doc.DocType), doc.URLContext, excerptsJSON, createdAt,
	); err != nil {
		return "", fmt.Errorf("postgres docstore: inserting document: %w", err)
	}

	return docID, nil
}

func (s *Store) ListByLabel(ctx context.Context, label string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc_id FROM documents WHERE label = $1 AND superseded_at IS NULL ORDER BY created_at ASC, row_id ASC`,
		label,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: listing by label: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListLabels(ctx context.Context) ([]docstore.LabelCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label, COUNT(*) FROM documents WHERE superseded_at IS NULL GROUP BY label ORDER BY label ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: listing labels: %w", err)
	}
	defer rows.Close()

	var out []docstore.LabelCount
	for rows.Next() {
		var lc docstore.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, docID string) (*docstore.Document, error) {
	var doc docstore.Document
	var excerptsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc_id, label, source_url, path, content_hash, doc_type, url_context, excerpts, created_at
		 FROM documents WHERE doc_id = $1 AND superseded_at IS NULL`,
		docID,
	).Scan(&doc.DocID, &doc.Label, &doc.SourceURL, &doc.Path, &doc.ContentHash, &doc.DocType, &doc.URLContext, &excerptsJSON, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: loading document: %w", err)
	}
	if err := json.Unmarshal(excerptsJSON, &doc.Excerpts); err != nil {
		return nil, fmt.Errorf("postgres docstore: unmarshaling excerpts: %w", err)
	}
	return &doc, nil
}

func (s *Store) Excerpts(ctx context.Context, docID string) ([]docstore.Excerpt, error) {
	doc, err := s.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	return doc.Excerpts, nil
}

func (s *Store) Search(ctx context.Context, docID, needle string) ([]docstore.SearchHit, error) {
	excerpts, err := s.Excerpts(ctx, docID)
	if err != nil {
		return nil, err
	}
	if needle == "" {
		return nil, nil
	}
	needleLower := strings.ToLower(needle)
	var hits []docstore.SearchHit
	for _, ex := range excerpts {
		idx := strings.Index(strings.ToLower(ex.Text), needleLower)
		if idx < 0 {
			continue
		}
		hits = append(hits, docstore.SearchHit{Ordinal: ex.Ordinal, Snippet: snippet(ex.Text, idx, len(needle))})
		if len(hits) >= docstore.SearchCap {
			break
		}
	}
	return hits, nil
}

func snippet(text string, matchStart, matchLen int) string {
	if len(text) <= docstore.SnippetMaxLen {
		return text
	}
	half := (docstore.SnippetMaxLen - matchLen) / 2
	start := matchStart - half
	if start < 0 {
		start = 0
	}
	end := start + docstore.SnippetMaxLen
	if end > len(text) {
		end = len(text)
		start = end - docstore.SnippetMaxLen
		if start < 0 {
			start = 0
		}
	}
	return text[start:end]
}

func (s *Store) RecordQA(ctx context.Context, qa docstore.QaRecord) error {
	citedJSON, err := json.Marshal(qa.CitedURLs)
	if err != nil {
		return fmt.Errorf("postgres docstore: marshaling cited urls: %w", err)
	}
	candidateJSON, err := json.Marshal(qa.CandidateHashes)
	if err != nil {
		return fmt.Errorf("postgres docstore: marshaling candidate hashes: %w", err)
	}
	ts := qa.Ts
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO qa_records (id, topic, question, answer, cited_urls, iterations, script_calls, truncated, candidate_hashes, ts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		qa.ID, qa.Topic, qa.Question, qa.Answer, citedJSON, qa.Iterations, qa.ScriptCalls, qa.Truncated, candidateJSON, ts,
	)
	if err != nil {
		return fmt.Errorf("postgres docstore: recording qa: %w", err)
	}
	return nil
}

func (s *Store) ExportQa(ctx context.Context, topic string) ([]docstore.QaRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, topic, question, answer, cited_urls, iterations, script_calls, truncated, candidate_hashes, ts
		 FROM qa_records WHERE topic = $1 ORDER BY ts ASC`,
		topic,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: exporting qa: %w", err)
	}
	defer rows.Close()

	var out []docstore.QaRecord
	for rows.Next() {
		var qa docstore.QaRecord
		var citedJSON, candidateJSON []byte
		if err := rows.Scan(&qa.ID, &qa.Topic, &qa.Question, &qa.Answer, &citedJSON, &qa.Iterations, &qa.ScriptCalls, &qa.Truncated, &candidateJSON, &qa.Ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(citedJSON, &qa.CitedURLs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(candidateJSON, &qa.CandidateHashes); err != nil {
			return nil, err
		}
		out = append(out, qa)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLabel(ctx context.Context, label string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT content_hash FROM documents WHERE label = $1 AND superseded_at IS NULL`, label)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: listing content hashes for delete: %w", err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, err
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE label = $1`, label); err != nil {
		return nil, fmt.Errorf("postgres docstore: deleting documents for label %s: %w", label, err)
	}
	return hashes, nil
}

// HasContentHash reports whether any live Document, under any label,
// still references hash.
func (s *Store) HasContentHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE content_hash = $1 AND superseded_at IS NULL)`,
		hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres docstore: checking content hash reference: %w", err)
	}
	return exists, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
