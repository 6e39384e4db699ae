package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/rlmcore/docstore"
)

func TestComputeExcerptsMarkdownSplitsOnHeadings(t *testing.T) {
	content := "# Intro\n\nWelcome.\n\n## Setup\n\nInstall it.\n"

	excerpts := ComputeExcerpts(docstore.DocTypeDocumentation, content)
	require.Len(t, excerpts, 2)
	assert.Equal(t, "Intro", excerpts[0].HeadingPath)
	assert.Equal(t, "Intro > Setup", excerpts[1].HeadingPath)
}

func TestComputeExcerptsMarkdownCoversContentExactly(t *testing.T) {
	content := "# Intro\n\nWelcome.\n\n## Setup\n\nInstall it.\n"

	excerpts := ComputeExcerpts(docstore.DocTypeDocumentation, content)

	var rebuilt string
	for _, e := range excerpts {
		assert.Equal(t, content[e.StartOffset:e.EndOffset], e.Text)
		rebuilt += content[e.StartOffset:e.EndOffset]
	}
	assert.Equal(t, content, rebuilt)
}

func TestComputeExcerptsMarkdownPreamble(t *testing.T) {
	content := "Some preamble text.\n\n# Intro\n\nBody.\n"

	excerpts := ComputeExcerpts(docstore.DocTypeDocumentation, content)
	require.Len(t, excerpts, 2)
	assert.Equal(t, "", excerpts[0].HeadingPath)
	assert.Equal(t, 0, excerpts[0].StartOffset)
}

func TestComputeExcerptsCodeIsSingleSpan(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"

	excerpts := ComputeExcerpts(docstore.DocTypeCode, content)
	require.Len(t, excerpts, 1)
	assert.Equal(t, content, excerpts[0].Text)
	assert.Equal(t, 0, excerpts[0].StartOffset)
	assert.Equal(t, len(content), excerpts[0].EndOffset)
}

func TestComputeExcerptsWebTilesFixedWindows(t *testing.T) {
	content := make([]byte, WindowSize*2+10)
	for i := range content {
		content[i] = 'a'
	}

	excerpts := ComputeExcerpts(docstore.DocTypeWeb, string(content))
	require.Len(t, excerpts, 3)
	assert.Equal(t, WindowSize, excerpts[0].EndOffset-excerpts[0].StartOffset)
	assert.Equal(t, 10, excerpts[2].EndOffset-excerpts[2].StartOffset)
}

func TestComputeExcerptsEmptyContent(t *testing.T) {
	assert.Empty(t, ComputeExcerpts(docstore.DocTypeWeb, ""))
}
