package papers

import (
	"context"
	"errors"
	"fmt"

	"github.com/henrybloomingdale/getpapers/internal/eutils"
)

var (
	// ErrEmptyQuery is returned before any network call for a blank query.
	ErrEmptyQuery = errors.New("search query cannot be empty")

	// ErrArticleNotFound is returned when the detail endpoint has no
	// record for a PMID.
	ErrArticleNotFound = eutils.ErrArticleNotFound
)

// ArticleSource retrieves one article per call. *eutils.Client and
// *CachedSource implement it.
type ArticleSource interface {
	FetchArticle(ctx context.Context, pmid string) (*eutils.Article, error)
}

// DetailFetcher resolves one PMID into a report row.
type DetailFetcher struct {
	source     ArticleSource
	classifier Classifier
}

// NewDetailFetcher creates a DetailFetcher.
func NewDetailFetcher(source ArticleSource, classifier Classifier) *DetailFetcher {
	return &DetailFetcher{source: source, classifier: classifier}
}

// Fetch retrieves pmid and classifies its authors. It returns (nil, nil)
// when the article has no non-academic author.
func (f *DetailFetcher) Fetch(ctx context.Context, pmid string) (*Record, error) {
	if f == nil || f.source == nil || f.classifier == nil {
		return nil, errors.New("detail fetcher is not configured")
	}

	article, err := f.source.FetchArticle(ctx, pmid)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, fmt.Errorf("PMID %s: %w", pmid, ErrArticleNotFound)
	}
	return BuildRecord(article, f.classifier), nil
}
