package rediscache

import (
	"context"

	"github.com/smallnest/rlmcore/docstore"
)

// CachingStore decorates a docstore.Store, fronting its Search calls with
// Cache and invalidating a Document's cached hits whenever it is
// re-ingested or its label is cleared. Every other method passes straight
// through to the wrapped Store.
type CachingStore struct {
	docstore.Store
	cache *Cache
}

// NewCachingStore wraps inner with cache.
func NewCachingStore(inner docstore.Store, cache *Cache) *CachingStore {
	return &CachingStore{Store: inner, cache: cache}
}

var _ docstore.Store = (*CachingStore)(nil)

func (s *CachingStore) Search(ctx context.Context, docID, needle string) ([]docstore.SearchHit, error) {
	return s.cache.Search(ctx, docID, needle, s.Store.Search)
}

func (s *CachingStore) Insert(ctx context.Context, doc docstore.Document, rowID string) (string, error) {
	docID, err := s.Store.Insert(ctx, doc, rowID)
	if err != nil {
		return "", err
	}
	if err := s.cache.InvalidateDocument(ctx, docID); err != nil {
		s.cache.log.Warn("rediscache: invalidating %s after insert: %v", docID, err)
	}
	return docID, nil
}

func (s *CachingStore) DeleteLabel(ctx context.Context, label string) ([]string, error) {
	docIDs, err := s.Store.ListByLabel(ctx, label)
	if err != nil {
		return nil, err
	}

	hashes, err := s.Store.DeleteLabel(ctx, label)
	if err != nil {
		return nil, err
	}

	for _, docID := range docIDs {
		if err := s.cache.InvalidateDocument(ctx, docID); err != nil {
			s.cache.log.Warn("rediscache: invalidating %s after delete: %v", docID, err)
		}
	}
	return hashes, nil
}

// Close closes both the wrapped Store and the cache's Redis client.
func (s *CachingStore) Close() error {
	if err := s.Store.Close(); err != nil {
		return err
	}
	return s.cache.Close()
}
