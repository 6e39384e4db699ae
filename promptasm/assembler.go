package promptasm

import (
	"fmt"
	"strings"

	"github.com/smallnest/rlmcore/docstore"
)

// capabilityPreamble describes the dialogue protocol and the fixed
// script/FINAL output discipline, per spec §4.6 step 2.
const capabilityPreamble = `You are a reasoning assistant answering questions strictly from a fixed corpus of ingested documents. You cannot browse the web or use any tool beyond the four functions described below.

To inspect the corpus, reply with a single fenced block tagged repl containing Starlark code that calls the available functions. The code's printed output is returned to you as the next turn.

When you have gathered enough evidence, reply with a terminal of the exact form FINAL(your answer here). The answer must cite the documents it draws from by their source_url. Do not emit a repl block and a FINAL in the same turn.

Available functions inside a repl block:
  list_documents() -> list of {doc_id, path, label, source_url}
  get_section(doc_id, ordinal) -> str
  search_document(doc_id, needle) -> list of (ordinal, snippet)
  llm_query(prompt) -> str  (single-shot, no tools, for summarization only)`

// Assembler builds the system prompt for a question over a topic's
// documents.
type Assembler struct{}

// New creates an Assembler. It holds no state: every call is pure over
// its arguments.
func New() *Assembler {
	return &Assembler{}
}

// BuildSystemPrompt assembles the capability description, the document
// manifest, and any url_context values verbatim, per spec §4.6 step 2.
func (a *Assembler) BuildSystemPrompt(docs []docstore.Document) string {
	var b strings.Builder
	b.WriteString(capabilityPreamble)
	b.WriteString("\n\nDocuments available for this question:\n")

	if len(docs) == 0 {
		b.WriteString("(none)\n")
	}

	for _, d := range docs {
		fmt.Fprintf(&b, "- doc_id=%s path=%q label=%q source_url=%q\n", d.DocID, d.Path, d.Label, d.SourceURL)
		if d.URLContext != "" {
			fmt.Fprintf(&b, "  url_context: %s\n", d.URLContext)
		}
	}

	return b.String()
}
