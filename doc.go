// Package rlmcore implements the reasoning core of a document-grounded
// question-answering assistant: a bounded, stateful dialogue loop (the
// RlmEngine) in which an LLM emits Starlark script fragments to inspect
// ingested documents before committing to a final, cited answer.
//
// # Package layout
//
// contentstore/ and docstore/ hold ingested material: content-addressed
// blobs and topic/label-indexed document metadata with per-document
// excerpts, respectively.
//
// ingest/ turns a source URL (a cloneable repository or a web page) into
// one or more Documents, splitting their content into excerpts by
// doc_type.
//
// rlmscript/ classifies one LLM turn as a fenced script, a FINAL(...)
// terminal, or neither.
//
// sandbox/ executes a script fragment in a deny-by-default Starlark
// interpreter exposing exactly four document-inspection builtins.
//
// llmclient/ and promptasm/ wrap the chat model and assemble its system
// prompt.
//
// rlmengine/ drives the turn loop described above, including its
// parallel-loop and reduce-to-one-answer variant.
//
// cmd/rlmd is a thin CLI wiring these packages together.
package rlmcore
