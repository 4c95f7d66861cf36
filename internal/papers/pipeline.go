package papers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/henrybloomingdale/getpapers/internal/eutils"
	"github.com/henrybloomingdale/getpapers/internal/observability"
)

// Searcher runs the identifier search. *eutils.Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string, opts *eutils.SearchOptions) (*eutils.SearchResult, error)
}

// Fetcher resolves one PMID into a record, or (nil, nil) when the article
// does not qualify. *DetailFetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, pmid string) (*Record, error)
}

// Recorder receives pipeline counters. *observability.Metrics implements it.
type Recorder interface {
	RecordSearch(ids int)
	RecordSearchFailed()
	RecordArticleFetched(qualifying bool)
	RecordArticleSkipped()
}

// Config controls a pipeline run.
type Config struct {
	// Concurrency is the number of detail fetches in flight. 1 is strictly
	// sequential.
	Concurrency int
	Search      eutils.SearchOptions
}

// DefaultConfig fetches sequentially with the default search limit.
func DefaultConfig() Config {
	return Config{
		Concurrency: 1,
		Search:      eutils.SearchOptions{Limit: eutils.DefaultSearchLimit},
	}
}

// ProgressPhase indicates where we are in the pipeline.
type ProgressPhase string

const (
	ProgressSearch ProgressPhase = "search"
	ProgressFetch  ProgressPhase = "fetch"
	ProgressDone   ProgressPhase = "done"
)

// ProgressUpdate is emitted as the pipeline advances. During the fetch
// phase there is one update per PMID, with Current counting completed
// fetches and Err set when that PMID was skipped.
type ProgressUpdate struct {
	Phase   ProgressPhase
	Message string
	Current int
	Total   int
	PMID    string
	Err     error
}

// ProgressCallback receives progress updates. Calls are serialized by the
// pipeline. It must be fast and must not block.
type ProgressCallback func(ProgressUpdate)

// SkippedItem is a PMID whose details could not be retrieved.
type SkippedItem struct {
	PMID string `json:"pmid"`
	Err  error  `json:"-"`
}

// Result is the outcome of a run. Records keep search order.
type Result struct {
	Query   string        `json:"query"`
	Count   int           `json:"count"`
	IDs     []string      `json:"ids"`
	Records []Record      `json:"records"`
	Skipped []SkippedItem `json:"skipped,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Pipeline runs one search followed by a detail fetch per identifier.
type Pipeline struct {
	searcher Searcher
	fetcher  Fetcher
	cfg      Config
	progress ProgressCallback
	recorder Recorder
	logger   zerolog.Logger
}

// NewPipeline creates a pipeline. A Concurrency below 1 is treated as 1.
func NewPipeline(searcher Searcher, fetcher Fetcher, cfg Config) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		searcher: searcher,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   zerolog.Nop(),
	}
}

// WithProgress sets an optional progress callback.
func (p *Pipeline) WithProgress(cb ProgressCallback) *Pipeline {
	p.progress = cb
	return p
}

// WithRecorder sets an optional metrics recorder.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// WithLogger sets the logger.
func (p *Pipeline) WithLogger(l zerolog.Logger) *Pipeline {
	p.logger = l
	return p
}

// Run searches for query and returns the qualifying records in search
// order. Search failure and cancellation are fatal; a failed detail fetch
// only lands the PMID in Result.Skipped. An empty Records slice is not an
// error.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	if p == nil || p.searcher == nil || p.fetcher == nil {
		return nil, errors.New("pipeline is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	log := observability.WithQueryContext(p.logger, query)

	p.report(ProgressUpdate{Phase: ProgressSearch, Message: "Searching PubMed..."})
	opts := p.cfg.Search
	sr, err := p.searcher.Search(ctx, query, &opts)
	if err != nil {
		if p.recorder != nil {
			p.recorder.RecordSearchFailed()
		}
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if sr == nil {
		return nil, fmt.Errorf("search %q: nil result", query)
	}
	if p.recorder != nil {
		p.recorder.RecordSearch(len(sr.IDs))
	}
	log.Debug().Strs("ids", sr.IDs).Int("count", sr.Count).Msg("search finished")

	result := &Result{Query: query, Count: sr.Count, IDs: sr.IDs, Records: []Record{}}

	records, skipped, err := p.fetchAll(ctx, sr.IDs, log)
	if err != nil {
		return nil, fmt.Errorf("fetching details for %q: %w", query, err)
	}
	result.Records = records
	result.Skipped = skipped
	result.Elapsed = time.Since(start)

	p.report(ProgressUpdate{
		Phase:   ProgressDone,
		Message: fmt.Sprintf("%d of %d papers have non-academic authors", len(records), len(sr.IDs)),
		Current: len(sr.IDs),
		Total:   len(sr.IDs),
	})
	log.Info().
		Int("ids", len(sr.IDs)).
		Int("records", len(records)).
		Int("skipped", len(skipped)).
		Dur("elapsed", result.Elapsed).
		Msg("run finished")

	return result, nil
}

type outcome struct {
	record *Record
	err    error
}

// fetchAll fetches every PMID through a bounded worker pool. Each worker
// writes only its own slot so the output order is the input order.
func (p *Pipeline) fetchAll(ctx context.Context, ids []string, log zerolog.Logger) ([]Record, []SkippedItem, error) {
	total := len(ids)
	slots := make([]outcome, total)

	var (
		mu   sync.Mutex
		done int
	)
	finished := func(pmid string, err error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		msg := fmt.Sprintf("Fetched %d/%d", done, total)
		if err != nil {
			msg = fmt.Sprintf("Skipped PMID %s", pmid)
		}
		p.report(ProgressUpdate{Phase: ProgressFetch, Message: msg, Current: done, Total: total, PMID: pmid, Err: err})
	}

	if total > 0 {
		p.report(ProgressUpdate{Phase: ProgressFetch, Message: fmt.Sprintf("Fetching %d papers...", total), Total: total})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for i, pmid := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := p.fetcher.Fetch(gctx, pmid)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			slots[i] = outcome{record: rec, err: err}

			if p.recorder != nil {
				if err != nil {
					p.recorder.RecordArticleSkipped()
				} else {
					p.recorder.RecordArticleFetched(rec != nil)
				}
			}
			if err != nil {
				plog := observability.WithPaperContext(log, pmid)
				plog.Debug().Err(err).Msg("skipping article")
			}
			finished(pmid, err)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	records := make([]Record, 0, total)
	var skipped []SkippedItem
	for i, o := range slots {
		switch {
		case o.err != nil:
			skipped = append(skipped, SkippedItem{PMID: ids[i], Err: o.err})
		case o.record != nil:
			records = append(records, *o.record)
		}
	}
	return records, skipped, nil
}

func (p *Pipeline) report(update ProgressUpdate) {
	if p.progress != nil {
		p.progress(update)
	}
}
