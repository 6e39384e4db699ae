package promptasm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallnest/rlmcore/docstore"
)

func TestBuildSystemPromptListsDocumentsAndURLContext(t *testing.T) {
	a := New()
	docs := []docstore.Document{
		{DocID: "d1", Path: "readme.md", Label: "demo", SourceURL: "https://example.org/repo", URLContext: "https://example.org/repo/blob/main/readme.md"},
	}

	prompt := a.BuildSystemPrompt(docs)
	assert.Contains(t, prompt, "list_documents()")
	assert.Contains(t, prompt, "FINAL(")
	assert.Contains(t, prompt, "doc_id=d1")
	assert.Contains(t, prompt, "url_context: https://example.org/repo/blob/main/readme.md")
}

func TestBuildSystemPromptHandlesNoDocuments(t *testing.T) {
	a := New()
	prompt := a.BuildSystemPrompt(nil)
	assert.Contains(t, prompt, "(none)")
}
