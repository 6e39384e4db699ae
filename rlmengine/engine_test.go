package rlmengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/rlmcore/docstore"
	"github.com/smallnest/rlmcore/llmclient"
	"github.com/smallnest/rlmcore/rlmerrors"
	"github.com/smallnest/rlmcore/rlmlog"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id": "chatcmpl-test", "object": "chat.completion", "created": 1, "model": "test",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
}

// scriptedServer replies with the next response in turns on each request,
// repeating the last one once exhausted. Safe for concurrent requests,
// since parallel_loops > 1 dialogues share one server.
func scriptedServer(t *testing.T, turns []string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	var call int
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := call
		if idx >= len(turns) {
			idx = len(turns) - 1
		}
		call++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse(turns[idx]))
	}))
}

func newTestStore(t *testing.T) docstore.Store {
	t.Helper()
	s, err := docstore.Open(docstore.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDocument(t *testing.T, store docstore.Store, label string) {
	t.Helper()
	doc := docstore.Document{
		Label:       label,
		SourceURL:   "https://example.org/doc",
		Path:        "readme.md",
		ContentHash: "h1",
		DocType:     docstore.DocTypeDocumentation,
		Excerpts: []docstore.Excerpt{
			{Ordinal: 1, HeadingPath: "Intro", Text: "Providers need 8GB RAM to run the service."},
		},
	}
	_, err := store.Insert(context.Background(), doc, uuid.NewString())
	require.NoError(t, err)
}

func TestAskReturnsNoDocumentsForUnknownTopic(t *testing.T) {
	store := newTestStore(t)
	primary := llmclient.New("", "key", "model", rlmlog.New("t", rlmlog.LevelError))
	sub := llmclient.New("", "key", "submodel", rlmlog.New("t", rlmlog.LevelError))

	e := New(store, primary, sub, rlmlog.New("t", rlmlog.LevelError), Options{})
	_, err := e.Ask(context.Background(), "unknown-topic", "what RAM is needed?")

	var noDocs *rlmerrors.NoDocumentsForTopic
	assert.ErrorAs(t, err, &noDocs)
}

func TestAskSucceedsAfterScriptThenFinal(t *testing.T) {
	store := newTestStore(t)
	seedDocument(t, store, "demo")

	longAnswer := "The service requires 8GB of RAM according to the documentation excerpt, which is sufficient for most deployments and should be provisioned ahead of time."

	server := scriptedServer(t, []string{
		"```repl\nprint(search_document(list_documents()[0][\"doc_id\"], \"RAM\"))\n```",
		"```repl\nprint(get_section(list_documents()[0][\"doc_id\"], 1))\n```",
		"```repl\nprint(\"noted\")\n```",
		"FINAL(" + longAnswer + ")",
	})
	defer server.Close()

	primary := llmclient.New(server.URL, "key", "model", rlmlog.New("t", rlmlog.LevelError))
	sub := llmclient.New(server.URL, "key", "submodel", rlmlog.New("t", rlmlog.LevelError))

	e := New(store, primary, sub, rlmlog.New("t", rlmlog.LevelError), Options{MinCodeExecutions: 3, MinAnswerLen: 50})
	result, err := e.Ask(context.Background(), "demo", "how much RAM is needed?")
	require.NoError(t, err)
	assert.Equal(t, longAnswer, result.Answer)
	assert.Equal(t, 3, result.ScriptCalls)
	assert.False(t, result.Truncated)
}

func TestAskRejectsFinalBelowMinCodeExecutions(t *testing.T) {
	store := newTestStore(t)
	seedDocument(t, store, "demo")

	shortEarlyFinal := "FINAL(Too early to answer but this text is long enough to pass the length check on its own merits here.)"
	longAnswer := "The service requires 8GB of RAM according to the documentation excerpt, which is sufficient for most deployments overall."

	server := scriptedServer(t, []string{
		shortEarlyFinal,
		"```repl\nprint(\"ok\")\n```",
		"```repl\nprint(\"ok\")\n```",
		"```repl\nprint(\"ok\")\n```",
		"FINAL(" + longAnswer + ")",
	})
	defer server.Close()

	primary := llmclient.New(server.URL, "key", "model", rlmlog.New("t", rlmlog.LevelError))
	sub := llmclient.New(server.URL, "key", "submodel", rlmlog.New("t", rlmlog.LevelError))

	e := New(store, primary, sub, rlmlog.New("t", rlmlog.LevelError), Options{MinCodeExecutions: 3, MinAnswerLen: 50})
	result, err := e.Ask(context.Background(), "demo", "how much RAM?")
	require.NoError(t, err)
	assert.Equal(t, longAnswer, result.Answer)
	assert.GreaterOrEqual(t, result.ScriptCalls, 3)
}

func TestAskExhaustsLoopAndFlagsTruncated(t *testing.T) {
	store := newTestStore(t)
	seedDocument(t, store, "demo")

	server := scriptedServer(t, []string{"I am still thinking about this, no script and no final yet."})
	defer server.Close()

	primary := llmclient.New(server.URL, "key", "model", rlmlog.New("t", rlmlog.LevelError))
	sub := llmclient.New(server.URL, "key", "submodel", rlmlog.New("t", rlmlog.LevelError))

	e := New(store, primary, sub, rlmlog.New("t", rlmlog.LevelError), Options{MaxIterations: 2})
	result, err := e.Ask(context.Background(), "demo", "how much RAM?")

	var exhausted *rlmerrors.LoopExhausted
	assert.ErrorAs(t, err, &exhausted)
	assert.True(t, result.Truncated)
}

func TestAskParallelLoopsReducesToOneAnswerWithCandidateHashes(t *testing.T) {
	store := newTestStore(t)
	seedDocument(t, store, "demo")

	finalA := "Candidate A: the service requires 8GB of RAM, comfortably covering most single-node deployments today."
	finalB := "Candidate B: 8GB of RAM is the documented minimum, though 16GB is recommended for headroom in production."
	finalC := "Candidate C: per the docs, 8GB RAM is required; swap should be disabled on constrained hosts."
	reduced := "The service requires 8GB of RAM at minimum, with 16GB recommended for production headroom."

	// Each loop resends its whole dialogue, whose system prompt ends in
	// "(reasoning attempt #N)". The fake answers every loop with three
	// script turns (the default MinCodeExecutions) and then that loop's own
	// FINAL, and answers the reduce turn, a lone user message, with the
	// reduced FINAL.
	finals := map[string]string{"#1)": finalA, "#2)": finalB, "#3)": finalC}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		reply := "FINAL(" + reduced + ")"
		if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
			assistantTurns := 0
			for _, m := range req.Messages {
				if m.Role == "assistant" {
					assistantTurns++
				}
			}
			reply = "```repl\nprint(\"ok\")\n```"
			if assistantTurns >= 3 {
				for suffix, final := range finals {
					if strings.HasSuffix(req.Messages[0].Content, suffix) {
						reply = "FINAL(" + final + ")"
					}
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse(reply))
	}))
	defer server.Close()

	primary := llmclient.New(server.URL, "key", "model", rlmlog.New("t", rlmlog.LevelError))
	sub := llmclient.New(server.URL, "key", "submodel", rlmlog.New("t", rlmlog.LevelError))

	e := New(store, primary, sub, rlmlog.New("t", rlmlog.LevelError), Options{
		MinAnswerLen:  10,
		ParallelLoops: 3,
	})
	result, err := e.Ask(context.Background(), "demo", "how much RAM is needed?")
	require.NoError(t, err)
	assert.Equal(t, reduced, result.Answer)

	wantHashes := make([]string, 0, 3)
	for _, candidate := range []string{finalA, finalB, finalC} {
		sum := sha256.Sum256([]byte(candidate))
		wantHashes = append(wantHashes, hex.EncodeToString(sum[:]))
	}
	require.Len(t, result.CandidateHashes, 3)
	assert.ElementsMatch(t, wantHashes, result.CandidateHashes)

	records, err := store.ExportQa(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.ElementsMatch(t, wantHashes, records[0].CandidateHashes)
}

func TestExtractCitationsDedupsAndPreservesOrder(t *testing.T) {
	answer := "See [docs](https://example.org/a) and also [again](https://example.org/a) plus [other](https://example.org/b)."
	urls := extractCitations(answer)
	assert.Equal(t, []string{"https://example.org/a", "https://example.org/b"}, urls)
}
