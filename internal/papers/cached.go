package papers

import (
	"context"

	"github.com/henrybloomingdale/getpapers/internal/cache"
	"github.com/henrybloomingdale/getpapers/internal/eutils"
)

// CachedSource serves articles from an on-disk cache and falls back to the
// wrapped source on a miss. Only successful fetches are cached.
type CachedSource struct {
	source  ArticleSource
	cache   *cache.DataCache[eutils.Article]
	observe func(hit bool)
}

// NewCachedSource wraps source with c.
func NewCachedSource(source ArticleSource, c *cache.DataCache[eutils.Article]) *CachedSource {
	return &CachedSource{source: source, cache: c}
}

// WithObserver registers a callback told about every hit and miss.
func (s *CachedSource) WithObserver(fn func(hit bool)) *CachedSource {
	s.observe = fn
	return s
}

// FetchArticle implements ArticleSource.
func (s *CachedSource) FetchArticle(ctx context.Context, pmid string) (*eutils.Article, error) {
	if a := s.cache.Lookup(pmid); a != nil {
		s.report(true)
		return a, nil
	}
	s.report(false)

	a, err := s.source.FetchArticle(ctx, pmid)
	if err != nil {
		return nil, err
	}
	s.cache.Update(pmid, *a)
	return a, nil
}

func (s *CachedSource) report(hit bool) {
	if s.observe != nil {
		s.observe(hit)
	}
}
