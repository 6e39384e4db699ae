package rlmengine

import (
	"context"

	"github.com/smallnest/rlmcore/docstore"
	"github.com/smallnest/rlmcore/llmclient"
	"github.com/smallnest/rlmcore/sandbox"
)

// topicDocAccess adapts a docstore.Store, scoped to one question's already
// loaded document set, to sandbox.DocumentAccess. list_documents() only
// ever sees the topic's documents (spec §4.5); get_section and
// search_document take a global doc_id so they delegate straight to the
// store.
type topicDocAccess struct {
	store docstore.Store
	docs  []docstore.Document
}

func (a *topicDocAccess) ListDocuments(ctx context.Context) ([]sandbox.DocSummary, error) {
	out := make([]sandbox.DocSummary, len(a.docs))
	for i, d := range a.docs {
		out[i] = sandbox.DocSummary{DocID: d.DocID, Path: d.Path, Label: d.Label, SourceURL: d.SourceURL}
	}
	return out, nil
}

func (a *topicDocAccess) GetSection(ctx context.Context, docID string, ordinal int) (string, error) {
	excerpts, err := a.store.Excerpts(ctx, docID)
	if err != nil {
		return "", err
	}
	if ordinal < 1 || ordinal > len(excerpts) {
		return "", &outOfRangeError{DocID: docID, Ordinal: ordinal, Count: len(excerpts)}
	}
	return excerpts[ordinal-1].Text, nil
}

func (a *topicDocAccess) SearchDocument(ctx context.Context, docID, needle string) ([]sandbox.SearchHit, error) {
	hits, err := a.store.Search(ctx, docID, needle)
	if err != nil {
		return nil, err
	}
	out := make([]sandbox.SearchHit, len(hits))
	for i, h := range hits {
		out[i] = sandbox.SearchHit{Ordinal: h.Ordinal, Snippet: h.Snippet}
	}
	return out, nil
}

type outOfRangeError struct {
	DocID   string
	Ordinal int
	Count   int
}

func (e *outOfRangeError) Error() string {
	return "ordinal out of range"
}

// subModelAdapter adapts an llmclient.Client to sandbox.SubModel for
// llm_query().
type subModelAdapter struct {
	client *llmclient.Client
}

func (a *subModelAdapter) Query(ctx context.Context, prompt string) (string, error) {
	return a.client.QueryOnce(ctx, prompt)
}
