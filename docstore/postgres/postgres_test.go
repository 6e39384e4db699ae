package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"

	"github.com/smallnest/rlmcore/docstore"
)

func TestStore_Insert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock)

	doc := docstore.Document{
		Label:       "demo",
		SourceURL:   "https://example.org/doc",
		Path:        "",
		ContentHash: "abc123",
		DocType:     docstore.DocTypeWeb,
		Excerpts: []docstore.Excerpt{
			{Ordinal: 1, StartOffset: 0, EndOffset: 10, Text: "0123456789"},
		},
		CreatedAt: time.Now().UTC(),
	}
	excerptsJSON, _ := json.Marshal(doc.Excerpts)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET superseded_at")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(
			"row-1",
			docstore.DeriveDocID(doc.Label, doc.SourceURL, doc.Path),
			doc.Label, doc.SourceURL, doc.Path, doc.ContentHash, string(doc.DocType), doc.URLContext,
			excerptsJSON, doc.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	docID, err := store.Insert(context.Background(), doc, "row-1")
	assert.NoError(t, err)
	assert.Equal(t, docstore.DeriveDocID(doc.Label, doc.SourceURL, doc.Path), docID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordQA(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock)

	qa := docstore.QaRecord{
		ID:          "qa-1",
		Topic:       "demo",
		Question:    "What RAM is needed?",
		Answer:      "8GB",
		CitedURLs:   []string{"https://example.org/doc"},
		Iterations:  2,
		ScriptCalls: 1,
		Ts:          time.Now().UTC(),
	}
	citedJSON, _ := json.Marshal(qa.CitedURLs)
	candidateJSON, _ := json.Marshal(qa.CandidateHashes)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO qa_records")).
		WithArgs(qa.ID, qa.Topic, qa.Question, qa.Answer, citedJSON, qa.Iterations, qa.ScriptCalls, qa.Truncated, candidateJSON, qa.Ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.RecordQA(context.Background(), qa)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_HasContentHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock)

	rows := pgxmock.NewRows([]string{"exists"}).AddRow(true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM documents WHERE content_hash")).
		WithArgs("shared-hash").
		WillReturnRows(rows)

	has, err := store.HasContentHash(context.Background(), "shared-hash")
	assert.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}
