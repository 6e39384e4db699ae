// Package docstore implements the DocumentStore of spec §4.2: a
// topic-labelled index of Documents and their Excerpts, plus the
// append-only QaRecord log, layered over the ContentStore.
//
// Storage is SQLite via github.com/mattn/go-sqlite3, grounded directly on
// the teacher's store/sqlite.SqliteCheckpointStore — same schema-on-open,
// same JSON-column-for-structured-data shape, generalized from a single
// checkpoints table to documents/excerpts/qa_records.
package docstore
