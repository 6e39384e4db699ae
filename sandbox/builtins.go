package sandbox

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
)

// builtins returns the fixed predeclared environment: exactly
// list_documents, get_section, search_document, and llm_query, each bound
// to ctx so the underlying DocumentAccess/SubModel calls can be cancelled
// alongside the overall question.
func (e *Executor) builtins(ctx context.Context) starlark.StringDict {
	return starlark.StringDict{
		"list_documents": starlark.NewBuiltin("list_documents", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs("list_documents", args, kwargs); err != nil {
				return nil, err
			}
			docs, err := e.docs.ListDocuments(ctx)
			if err != nil {
				return nil, err
			}
			list := starlark.NewList(nil)
			for _, d := range docs {
				dict := starlark.NewDict(4)
				entries := []struct {
					k string
					v string
				}{
					{"doc_id", d.DocID},
					{"path", d.Path},
					{"label", d.Label},
					{"source_url", d.SourceURL},
				}
				for _, kv := range entries {
					if err := dict.SetKey(starlark.String(kv.k), starlark.String(kv.v)); err != nil {
						return nil, err
					}
				}
				if err := list.Append(dict); err != nil {
					return nil, err
				}
			}
			return list, nil
		}),

		"get_section": starlark.NewBuiltin("get_section", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var docID string
			var ordinal int
			if err := starlark.UnpackArgs("get_section", args, kwargs, "doc_id", &docID, "ordinal", &ordinal); err != nil {
				return nil, err
			}
			text, err := e.docs.GetSection(ctx, docID, ordinal)
			if err != nil {
				return nil, err
			}
			return starlark.String(text), nil
		}),

		"search_document": starlark.NewBuiltin("search_document", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var docID, needle string
			if err := starlark.UnpackArgs("search_document", args, kwargs, "doc_id", &docID, "needle", &needle); err != nil {
				return nil, err
			}
			hits, err := e.docs.SearchDocument(ctx, docID, needle)
			if err != nil {
				return nil, err
			}
			list := starlark.NewList(nil)
			for _, h := range hits {
				tuple := starlark.Tuple{starlark.MakeInt(h.Ordinal), starlark.String(h.Snippet)}
				if err := list.Append(tuple); err != nil {
					return nil, err
				}
			}
			return list, nil
		}),

		"llm_query": starlark.NewBuiltin("llm_query", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var prompt string
			if err := starlark.UnpackArgs("llm_query", args, kwargs, "prompt", &prompt); err != nil {
				return nil, err
			}
			if e.sub == nil {
				return nil, fmt.Errorf("llm_query: no sub-model configured")
			}
			answer, err := e.sub.Query(ctx, prompt)
			if err != nil {
				return nil, err
			}
			return starlark.String(answer), nil
		}),
	}
}
