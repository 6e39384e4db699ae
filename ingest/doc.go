// Package ingest implements the Ingestor of spec §4.3: it normalizes a
// URL (a repo clone or a web fetch) into a sequence of (path, bytes)
// pairs, computes each file's Excerpts, dedups through the ContentStore,
// and commits a Document per retained file to the DocumentStore.
//
// Repo cloning and web fetching are the "pure capabilities" spec §6
// treats as external/opaque; RepoCloner and WebFetcher are interfaces here
// so the core doesn't hard-depend on a particular git implementation, in
// keeping with that boundary. The default WebFetcher uses goquery and
// bluemonday; gomarkdown drives Markdown excerpting.
package ingest
