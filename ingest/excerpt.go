package ingest

import (
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/smallnest/rlmcore/docstore"
)

// WindowSize is the fixed-size window used to excerpt opaque text, per
// SPEC_FULL.md's resolution of the spec's open question (1-4 KiB
// suggested range; 2 KiB picked, grounded on the teacher's
// rag/splitter/simple.go default chunk-size range).
const WindowSize = 2048

// excerptMarkdown splits content on Markdown heading boundaries, per spec
// §3. Headings are located with gomarkdown's parser/ast walk; their
// original byte offsets are then recovered by scanning the raw content in
// heading order, since gomarkdown's AST does not retain source positions.
func excerptMarkdown(content string) []docstore.Excerpt {
	doc := parser.NewWithExtensions(parser.CommonExtensions).Parse([]byte(content))

	type heading struct {
		level int
		text  string
	}
	var headings []heading

	ast.WalkFunc(doc, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if h, ok := n.(*ast.Heading); ok {
			headings = append(headings, heading{level: h.Level, text: headingText(h)})
		}
		return ast.GoToNext
	})

	if len(headings) == 0 {
		return windowExcerpts(content, len(content))
	}

	// Recover offsets and build the hierarchical heading path (e.g.
	// "Intro > Setup") by tracking a stack keyed by heading level.
	var stack []string
	var offsets []int
	searchFrom := 0
	for _, h := range headings {
		idx := strings.Index(content[searchFrom:], h.text)
		if idx < 0 {
			idx = 0
		} else {
			idx += searchFrom
		}
		searchFrom = idx + len(h.text)
		// Start the excerpt at the beginning of the heading's line so ATX
		// markers ("## ") stay with their heading.
		idx = strings.LastIndex(content[:idx], "\n") + 1
		if n := len(offsets); n > 0 && idx < offsets[n-1] {
			idx = offsets[n-1]
		}
		offsets = append(offsets, idx)
	}

	var excerpts []docstore.Excerpt
	ordinal := 1

	if offsets[0] > 0 {
		excerpts = append(excerpts, docstore.Excerpt{
			Ordinal:     ordinal,
			HeadingPath: "",
			StartOffset: 0,
			EndOffset:   offsets[0],
			Text:        content[:offsets[0]],
		})
		ordinal++
	}

	for i, h := range headings {
		start := offsets[i]
		end := len(content)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}

		for len(stack) > 0 && len(stack) >= h.level {
			stack = stack[:h.level-1]
		}
		stack = append(stack, h.text)

		excerpts = append(excerpts, docstore.Excerpt{
			Ordinal:     ordinal,
			HeadingPath: strings.Join(stack, " > "),
			StartOffset: start,
			EndOffset:   end,
			Text:        content[start:end],
		})
		ordinal++
	}

	return excerpts
}

func headingText(h *ast.Heading) string {
	var sb strings.Builder
	ast.WalkFunc(h, func(n ast.Node, entering bool) ast.WalkStatus {
		if entering {
			if leaf, ok := n.(*ast.Text); ok {
				sb.Write(leaf.Literal)
			}
		}
		return ast.GoToNext
	})
	return sb.String()
}

// excerptCode returns a single excerpt covering the whole file, per spec
// §3 ("for code, on file boundaries").
func excerptCode(content string) []docstore.Excerpt {
	return []docstore.Excerpt{{
		Ordinal:     1,
		HeadingPath: "",
		StartOffset: 0,
		EndOffset:   len(content),
		Text:        content,
	}}
}

// windowExcerpts tiles content into fixed-size, non-overlapping windows
// for opaque text (spec §9's open question, resolved by SPEC_FULL.md).
func windowExcerpts(content string, windowSize int) []docstore.Excerpt {
	if windowSize <= 0 {
		windowSize = WindowSize
	}
	if len(content) == 0 {
		return nil
	}

	var excerpts []docstore.Excerpt
	ordinal := 1
	for start := 0; start < len(content); start += windowSize {
		end := start + windowSize
		if end > len(content) {
			end = len(content)
		}
		excerpts = append(excerpts, docstore.Excerpt{
			Ordinal:     ordinal,
			StartOffset: start,
			EndOffset:   end,
			Text:        content[start:end],
		})
		ordinal++
	}
	return excerpts
}

// ComputeExcerpts dispatches to the right excerpting strategy for docType,
// per spec §3's per-type rules.
func ComputeExcerpts(docType docstore.DocType, content string) []docstore.Excerpt {
	switch docType {
	case docstore.DocTypeDocumentation:
		return excerptMarkdown(content)
	case docstore.DocTypeCode:
		return excerptCode(content)
	default: // minimal, web, and anything else: opaque fixed-size windows
		return windowExcerpts(content, WindowSize)
	}
}
