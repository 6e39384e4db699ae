package ingest

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/smallnest/rlmcore/contentstore"
	"github.com/smallnest/rlmcore/docstore"
	"github.com/smallnest/rlmcore/rlmerrors"
	"github.com/smallnest/rlmcore/rlmlog"
)

// docExtensions maps a docstore.DocType to the file extensions retained
// for it during a repo clone, per spec §4.3.
var docExtensions = map[docstore.DocType][]string{
	docstore.DocTypeDocumentation: {".md", ".mdx", ".txt", ".rst"},
	docstore.DocTypeCode: {
		".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".rb", ".rs",
		".c", ".h", ".cc", ".cpp", ".hpp", ".cs", ".php", ".sh", ".sql",
		".yaml", ".yml", ".json", ".toml",
	},
}

// minimalRoots is the set of README-like basenames retained for
// DocTypeMinimal ingests.
var minimalRoots = []string{"readme.md", "readme.txt", "readme", "readme.rst"}

// Request is one call to Ingest, mirroring the core's typed Ingest(url,
// label, ...) call named in spec §6.
type Request struct {
	URL        string
	Label      string
	DocType    docstore.DocType
	Branch     string // repo clones only; default "main"
	URLContext string // optional; synthesized for repo clones when empty
}

// Ingestor normalizes a URL into (path, bytes) pairs, computes excerpts,
// dedups through the ContentStore, and commits a Document per retained
// file to the DocumentStore, per spec §4.3.
type Ingestor struct {
	content *contentstore.ContentStore
	docs    docstore.Store
	cloner  RepoCloner
	fetcher WebFetcher
	log     rlmlog.Logger
}

// New creates an Ingestor. cloner and fetcher may be nil to use the
// defaults (GitRepoCloner, HTTPWebFetcher).
func New(content *contentstore.ContentStore, docs docstore.Store, cloner RepoCloner, fetcher WebFetcher, log rlmlog.Logger) *Ingestor {
	if cloner == nil {
		cloner = NewGitRepoCloner()
	}
	if fetcher == nil {
		fetcher = NewHTTPWebFetcher()
	}
	return &Ingestor{content: content, docs: docs, cloner: cloner, fetcher: fetcher, log: log}
}

// Ingest dispatches req to a repo clone or a web fetch per spec §4.3 and
// commits the retained files as Documents under req.Label.
func (ig *Ingestor) Ingest(ctx context.Context, req Request) (int, error) {
	if req.URL == "" {
		return 0, &rlmerrors.IngestFailed{URL: req.URL, Reason: "empty url"}
	}

	if IsRepoHost(req.URL) {
		return ig.ingestRepo(ctx, req)
	}
	return ig.ingestWeb(ctx, req)
}

func (ig *Ingestor) ingestRepo(ctx context.Context, req Request) (int, error) {
	branch := req.Branch
	if branch == "" {
		branch = "main"
	}

	files, err := ig.cloner.Clone(ctx, req.URL, branch)
	if err != nil {
		return 0, &rlmerrors.IngestFailed{URL: req.URL, Reason: "clone failed", Err: err}
	}

	committed := 0
	for _, f := range files {
		if !keepFile(req.DocType, f.Path) {
			continue
		}

		urlContext := req.URLContext
		if urlContext == "" {
			urlContext = fmt.Sprintf("%s/blob/%s/%s", strings.TrimSuffix(req.URL, "/"), branch, f.Path)
		}

		if err := ig.commit(ctx, req.Label, req.URL, f.Path, req.DocType, urlContext, f.Data); err != nil {
			ig.log.Warn("ingest: skipping %s: %v", f.Path, err)
			continue
		}
		committed++
	}

	return committed, nil
}

func (ig *Ingestor) ingestWeb(ctx context.Context, req Request) (int, error) {
	finalURL, data, _, err := ig.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return 0, &rlmerrors.IngestFailed{URL: req.URL, Reason: "fetch failed", Err: err}
	}

	urlContext := req.URLContext
	if urlContext == "" {
		urlContext = finalURL
	}

	if err := ig.commit(ctx, req.Label, req.URL, "", req.DocType, urlContext, data); err != nil {
		return 0, &rlmerrors.IngestFailed{URL: req.URL, Reason: "commit failed", Err: err}
	}
	return 1, nil
}

func (ig *Ingestor) commit(ctx context.Context, label, sourceURL, filePath string, docType docstore.DocType, urlContext string, data []byte) error {
	hash, err := ig.content.Put(data)
	if err != nil {
		return fmt.Errorf("storing content: %w", err)
	}

	doc := docstore.Document{
		Label:       label,
		SourceURL:   sourceURL,
		Path:        filePath,
		ContentHash: hash,
		DocType:     docType,
		Excerpts:    ComputeExcerpts(docType, string(data)),
		URLContext:  urlContext,
	}

	if _, err := ig.docs.Insert(ctx, doc, uuid.NewString()); err != nil {
		return fmt.Errorf("writing document metadata: %w", err)
	}
	return nil
}

// keepFile applies the per-doc_type file filter spec §4.3 names:
// documentation keeps Markdown/text, code keeps source extensions,
// minimal keeps only README-like roots.
func keepFile(docType docstore.DocType, filePath string) bool {
	base := strings.ToLower(path.Base(filePath))

	switch docType {
	case docstore.DocTypeMinimal:
		for _, root := range minimalRoots {
			if base == root {
				return true
			}
		}
		return false
	default:
		exts, ok := docExtensions[docType]
		if !ok {
			return true // web/opaque filters don't apply to repo clones
		}
		ext := strings.ToLower(path.Ext(base))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}
