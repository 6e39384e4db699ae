package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocs struct {
	docs     []DocSummary
	sections map[string]map[int]string
	hits     map[string][]SearchHit
}

func (f *fakeDocs) ListDocuments(ctx context.Context) ([]DocSummary, error) {
	return f.docs, nil
}

func (f *fakeDocs) GetSection(ctx context.Context, docID string, ordinal int) (string, error) {
	sections, ok := f.sections[docID]
	if !ok {
		return "", fmt.Errorf("unknown doc_id %q", docID)
	}
	text, ok := sections[ordinal]
	if !ok {
		return "", fmt.Errorf("ordinal %d out of range for %q", ordinal, docID)
	}
	return text, nil
}

func (f *fakeDocs) SearchDocument(ctx context.Context, docID, needle string) ([]SearchHit, error) {
	return f.hits[docID], nil
}

type fakeSubModel struct {
	answer string
	err    error
}

func (f *fakeSubModel) Query(ctx context.Context, prompt string) (string, error) {
	return f.answer, f.err
}

func newTestExecutor() *Executor {
	docs := &fakeDocs{
		docs: []DocSummary{{DocID: "d1", Path: "readme.md", Label: "demo", SourceURL: "https://example.org"}},
		sections: map[string]map[int]string{
			"d1": {1: "Providers need 8GB RAM."},
		},
		hits: map[string][]SearchHit{
			"d1": {{Ordinal: 1, Snippet: "...8GB RAM..."}},
		},
	}
	sub := &fakeSubModel{answer: "summarized answer"}
	return New(docs, sub, time.Second)
}

func TestEvaluateListDocuments(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `
docs = list_documents()
print(docs[0]["doc_id"])
print(docs[0]["path"])
`)
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Contains(t, res.Stdout, "d1")
	assert.Contains(t, res.Stdout, "readme.md")
}

func TestEvaluateGetSection(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `print(get_section("d1", 1))`)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "Providers need 8GB RAM.")
}

func TestEvaluateGetSectionOutOfRangeIsScriptError(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `print(get_section("d1", 99))`)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)
}

func TestEvaluateSearchDocument(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `
hits = search_document("d1", "RAM")
for h in hits:
    print(h[0], h[1])
`)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "8GB RAM")
}

func TestEvaluateLlmQuery(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `print(llm_query("summarize this"))`)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "summarized answer")
}

func TestEvaluateDeniesLoad(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `load("foo.star", "bar")`)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)
}

func TestEvaluateDeniesImportKeyword(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `import os`)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "denied")
}

func TestEvaluateTruncatesOutput(t *testing.T) {
	e := newTestExecutor()
	res, err := e.Evaluate(context.Background(), `
for i in range(10000):
    print("x" * 100)
`)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Stdout), MaxOutput+1)
}

func TestEvaluateEnforcesDeadline(t *testing.T) {
	docs := &fakeDocs{}
	sub := &fakeSubModel{}
	e := New(docs, sub, 50*time.Millisecond)

	res, err := e.Evaluate(context.Background(), `
def spin():
    x = 0
    for i in range(100000000):
        x += i
    return x

spin()
`)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)
}

func TestEvaluateReturnsErrorWhenContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestExecutor()
	_, err := e.Evaluate(ctx, `print("hi")`)
	assert.Error(t, err)
}
