package docstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/rlmcore/rlmlog"
)

// SearchCap is the maximum number of hits Search returns per call
// (spec §4.2, K=20).
const SearchCap = 20

// SnippetMaxLen is the maximum length of a Search snippet.
const SnippetMaxLen = 200

// DocumentStore is a sqlite-backed, topic-labelled Document index.
type DocumentStore struct {
	db  *sql.DB
	log rlmlog.Logger

	mu          sync.Mutex // protects labelLocks
	labelLocks  map[string]*sync.Mutex
}

// Options configures Open.
type Options struct {
	Path   string // sqlite DSN/path; ":memory:" for ephemeral stores
	Logger rlmlog.Logger
}

// Open creates or reuses a DocumentStore at opts.Path, grounded on the
// teacher's SqliteCheckpointStore.NewSqliteCheckpointStore shape.
func Open(opts Options) (*DocumentStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("docstore: opening database: %w", err)
	}
	// A single connection serves every read and write, keeping sqlite's
	// single-writer model honest (and keeping one shared database for
	// ":memory:" stores); reads and writes therefore run one at a time.
	db.SetMaxOpenConns(1)

	logger := opts.Logger
	if logger == nil {
		logger = rlmlog.New("docstore: ", rlmlog.LevelInfo)
	}

	s := &DocumentStore{
		db:         db,
		log:        logger,
		labelLocks: make(map[string]*sync.Mutex),
	}

	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DocumentStore) Close() error { return s.db.Close() }

func (s *DocumentStore) initSchema(ctx context.Context) error {
	const schema = `
		PRAGMA journal_mode=WAL;

		CREATE TABLE IF NOT EXISTS documents (
			row_id       TEXT PRIMARY KEY,
			doc_id       TEXT NOT NULL,
			label        TEXT NOT NULL,
			source_url   TEXT NOT NULL,
			path         TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			doc_type     TEXT NOT NULL,
			url_context  TEXT,
			created_at   DATETIME NOT NULL,
			superseded_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_documents_label ON documents (label, superseded_at, created_at);
		CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents (doc_id, superseded_at);

		CREATE TABLE IF NOT EXISTS excerpts (
			row_id       TEXT NOT NULL,
			ordinal      INTEGER NOT NULL,
			heading_path TEXT,
			start_offset INTEGER NOT NULL,
			end_offset   INTEGER NOT NULL,
			text         TEXT NOT NULL,
			PRIMARY KEY (row_id, ordinal)
		);

		CREATE TABLE IF NOT EXISTS qa_records (
			id               TEXT PRIMARY KEY,
			topic            TEXT NOT NULL,
			question         TEXT NOT NULL,
			answer           TEXT NOT NULL,
			cited_urls       TEXT NOT NULL,
			iterations       INTEGER NOT NULL,
			script_calls     INTEGER NOT NULL,
			truncated        INTEGER NOT NULL,
			candidate_hashes TEXT NOT NULL DEFAULT '[]',
			ts               DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_qa_records_topic ON qa_records (topic, ts);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("docstore: creating schema: %w", err)
	}
	return nil
}

// DeriveDocID computes the stable, deterministic identifier for
// (label, sourceURL, path), per spec §3.
func DeriveDocID(label, sourceURL, path string) string {
	h := sha256.Sum256([]byte(label + "\x00" + sourceURL + "\x00" + path))
	return hex.EncodeToString(h[:16])
}

func (s *DocumentStore) labelLock(label string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.labelLocks[label]
	if !ok {
		m = &sync.Mutex{}
		s.labelLocks[label] = m
	}
	return m
}

// Insert atomically writes doc's metadata and excerpts, superseding any
// prior live Document sharing the same (Label, SourceURL, Path) identity.
// Writes serialize per label; before the transaction commits,
// list_by_label does not observe the new Document, satisfying the
// atomicity invariant in spec §8.
func (s *DocumentStore) Insert(ctx context.Context, doc Document, rowID string) (string, error) {
	lock := s.labelLock(doc.Label)
	lock.Lock()
	defer lock.Unlock()

	docID := DeriveDocID(doc.Label, doc.SourceURL, doc.Path)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("docstore: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET superseded_at = ? WHERE doc_id = ? AND superseded_at IS NULL`,
		time.Now().UTC(), docID,
	); err != nil {
		return "", fmt.Errorf("docstore: superseding prior document: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (row_id, doc_id, label, source_url, path, content_hash, doc_type, url_context, created_at, superseded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		rowID, docID, doc.Label, doc.SourceURL, doc.Path, doc.ContentHash, string(doc.DocType), doc.URLContext, createdAt,
	); err != nil {
		return "", fmt.Errorf("docstore: inserting document: %w", err)
	}

	for _, ex := range doc.Excerpts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO excerpts (row_id, ordinal, heading_path, start_offset, end_offset, text)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rowID, ex.Ordinal, ex.HeadingPath, ex.StartOffset, ex.EndOffset, ex.Text,
		); err != nil {
			return "", fmt.Errorf("docstore: inserting excerpt %d: %w", ex.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("docstore: committing insert: %w", err)
	}

	s.log.Info("ingested document %s (label=%s path=%s excerpts=%d)", docID, doc.Label, doc.Path, len(doc.Excerpts))
	return docID, nil
}

// ListByLabel returns the live document IDs for label, ordered by
// insertion time.
func (s *DocumentStore) ListByLabel(ctx context.Context, label string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id FROM documents WHERE label = ? AND superseded_at IS NULL ORDER BY created_at ASC, row_id ASC`,
		label,
	)
	if err != nil {
		return nil, fmt.Errorf("docstore: listing by label: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("docstore: scanning doc_id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListLabels returns every label with at least one live document, and its
// live document count.
func (s *DocumentStore) ListLabels(ctx context.Context) ([]LabelCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM documents WHERE superseded_at IS NULL GROUP BY label ORDER BY label ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("docstore: listing labels: %w", err)
	}
	defer rows.Close()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("docstore: scanning label count: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// Get returns the live Document for docID, with its excerpts populated.
func (s *DocumentStore) Get(ctx context.Context, docID string) (*Document, error) {
	var (
		rowID string
		doc   Document
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT row_id, doc_id, label, source_url, path, content_hash, doc_type, url_context, created_at
		 FROM documents WHERE doc_id = ? AND superseded_at IS NULL`,
		docID,
	).Scan(&rowID, &doc.DocID, &doc.Label, &doc.SourceURL, &doc.Path, &doc.ContentHash, &doc.DocType, &doc.URLContext, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("docstore: document not found: %s", docID)
		}
		return nil, fmt.Errorf("docstore: loading document: %w", err)
	}

	excerpts, err := s.excerptsByRowID(ctx, rowID)
	if err != nil {
		return nil, err
	}
	doc.Excerpts = excerpts
	return &doc, nil
}

// Excerpts returns the ordered excerpts of docID.
func (s *DocumentStore) Excerpts(ctx context.Context, docID string) ([]Excerpt, error) {
	var rowID string
	err := s.db.QueryRowContext(ctx,
		`SELECT row_id FROM documents WHERE doc_id = ? AND superseded_at IS NULL`, docID,
	).Scan(&rowID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("docstore: document not found: %s", docID)
		}
		return nil, fmt.Errorf("docstore: resolving document: %w", err)
	}
	return s.excerptsByRowID(ctx, rowID)
}

func (s *DocumentStore) excerptsByRowID(ctx context.Context, rowID string) ([]Excerpt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, heading_path, start_offset, end_offset, text
		 FROM excerpts WHERE row_id = ? ORDER BY ordinal ASC`,
		rowID,
	)
	if err != nil {
		return nil, fmt.Errorf("docstore: loading excerpts: %w", err)
	}
	defer rows.Close()

	var out []Excerpt
	for rows.Next() {
		var ex Excerpt
		var heading sql.NullString
		if err := rows.Scan(&ex.Ordinal, &heading, &ex.StartOffset, &ex.EndOffset, &ex.Text); err != nil {
			return nil, fmt.Errorf("docstore: scanning excerpt: %w", err)
		}
		ex.HeadingPath = heading.String
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Search does a case-insensitive substring search over docID's excerpt
// text, returning at most SearchCap hits with SnippetMaxLen-bounded
// snippets centered on the match.
func (s *DocumentStore) Search(ctx context.Context, docID, needle string) ([]SearchHit, error) {
	excerpts, err := s.Excerpts(ctx, docID)
	if err != nil {
		return nil, err
	}
	if needle == "" {
		return nil, nil
	}

	needleLower := strings.ToLower(needle)
	var hits []SearchHit
	for _, ex := range excerpts {
		idx := strings.Index(strings.ToLower(ex.Text), needleLower)
		if idx < 0 {
			continue
		}
		hits = append(hits, SearchHit{Ordinal: ex.Ordinal, Snippet: centeredSnippet(ex.Text, idx, len(needle))})
		if len(hits) >= SearchCap {
			break
		}
	}
	return hits, nil
}

func centeredSnippet(text string, matchStart, matchLen int) string {
	if len(text) <= SnippetMaxLen {
		return text
	}
	const ellipsis = "…"
	// Leave room for an ellipsis on each cut end so the result stays within
	// SnippetMaxLen.
	window := SnippetMaxLen - 2*len(ellipsis)
	half := (window - matchLen) / 2
	start := matchStart - half
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(text) {
		end = len(text)
		start = end - window
		if start < 0 {
			start = 0
		}
	}
	snippet := text[start:end]
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(text) {
		snippet = snippet + ellipsis
	}
	return snippet
}

// RecordQA appends a QaRecord. QaRecords are append-only; there is no
// update or delete operation.
func (s *DocumentStore) RecordQA(ctx context.Context, qa QaRecord) error {
	citedJSON, err := json.Marshal(qa.CitedURLs)
	if err != nil {
		return fmt.Errorf("docstore: marshaling cited urls: %w", err)
	}
	candidateJSON, err := json.Marshal(qa.CandidateHashes)
	if err != nil {
		return fmt.Errorf("docstore: marshaling candidate hashes: %w", err)
	}
	ts := qa.Ts
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	truncated := 0
	if qa.Truncated {
		truncated = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO qa_records (id, topic, question, answer, cited_urls, iterations, script_calls, truncated, candidate_hashes, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		qa.ID, qa.Topic, qa.Question, qa.Answer, string(citedJSON), qa.Iterations, qa.ScriptCalls, truncated, string(candidateJSON), ts,
	)
	if err != nil {
		return fmt.Errorf("docstore: recording qa: %w", err)
	}
	return nil
}

// ExportQa returns every QaRecord recorded for topic, oldest first — a
// curation read path, not in spec.md itself (§3's "for later curation"
// implies a read path back out). cmd/rlmd has no subcommand for it.
func (s *DocumentStore) ExportQa(ctx context.Context, topic string) ([]QaRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, question, answer, cited_urls, iterations, script_calls, truncated, candidate_hashes, ts
		 FROM qa_records WHERE topic = ? ORDER BY ts ASC`,
		topic,
	)
	if err != nil {
		return nil, fmt.Errorf("docstore: exporting qa: %w", err)
	}
	defer rows.Close()

	var out []QaRecord
	for rows.Next() {
		var qa QaRecord
		var citedJSON, candidateJSON string
		var truncated int
		if err := rows.Scan(&qa.ID, &qa.Topic, &qa.Question, &qa.Answer, &citedJSON, &qa.Iterations, &qa.ScriptCalls, &truncated, &candidateJSON, &qa.Ts); err != nil {
			return nil, fmt.Errorf("docstore: scanning qa record: %w", err)
		}
		qa.Truncated = truncated != 0
		if err := json.Unmarshal([]byte(citedJSON), &qa.CitedURLs); err != nil {
			return nil, fmt.Errorf("docstore: unmarshaling cited urls: %w", err)
		}
		if err := json.Unmarshal([]byte(candidateJSON), &qa.CandidateHashes); err != nil {
			return nil, fmt.Errorf("docstore: unmarshaling candidate hashes: %w", err)
		}
		out = append(out, qa)
	}
	return out, rows.Err()
}

// HasContentHash reports whether any live Document, under any label,
// still references hash. Callers use this before collecting a blob from
// ContentStore so a content hash shared by Documents under two labels
// (spec §3/§8's same-URL-twice dedup case) survives deleting one of them.
func (s *DocumentStore) HasContentHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE content_hash = ? AND superseded_at IS NULL)`,
		hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("docstore: checking content hash reference: %w", err)
	}
	return exists, nil
}

// DeleteLabel removes every live Document under label. The underlying
// ContentStore blobs are left for the caller to garbage-collect once it
// has confirmed no other label still references them (spec §3's
// "retained if referenced, collected otherwise") — see HasContentHash.
func (s *DocumentStore) DeleteLabel(ctx context.Context, label string) ([]string, error) {
	lock := s.labelLock(label)
	lock.Lock()
	defer lock.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT content_hash FROM documents WHERE label = ? AND superseded_at IS NULL`, label,
	)
	if err != nil {
		return nil, fmt.Errorf("docstore: listing content hashes for delete: %w", err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, fmt.Errorf("docstore: scanning content hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE label = ?`, label); err != nil {
		return nil, fmt.Errorf("docstore: deleting documents for label %s: %w", label, err)
	}
	return hashes, nil
}
