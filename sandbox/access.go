package sandbox

import "context"

// DocSummary is one row of list_documents()'s result, per spec §4.5.
type DocSummary struct {
	DocID     string
	Path      string
	Label     string
	SourceURL string
}

// SearchHit is one row of search_document()'s result.
type SearchHit struct {
	Ordinal int
	Snippet string
}

// DocumentAccess is the document-access surface the sandbox's four
// primitives are wired to. rlmengine supplies an implementation scoped to
// a single question's topic.
type DocumentAccess interface {
	ListDocuments(ctx context.Context) ([]DocSummary, error)
	GetSection(ctx context.Context, docID string, ordinal int) (string, error)
	SearchDocument(ctx context.Context, docID, needle string) ([]SearchHit, error)
}

// SubModel is the single-shot sub-model endpoint llm_query() calls.
type SubModel interface {
	Query(ctx context.Context, prompt string) (string, error)
}
