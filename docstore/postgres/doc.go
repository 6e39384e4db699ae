// Package postgres is an optional DocumentStore backend over PostgreSQL,
// grounded on the teacher's store/postgres.PostgresCheckpointStore. It
// satisfies the same docstore.Store interface as the default sqlite
// backend, for operators who want a shared, externally managed store.
//
// Spec §1 scopes the core to "a single process serves a single operator's
// corpora" — that constrains multi-tenancy, not storage topology; nothing
// here relaxes it; a Postgres-backed DocumentStore is still one operator's
// store, just not file-local.
package postgres
