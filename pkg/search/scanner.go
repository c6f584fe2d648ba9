package search

import (
	"context"
	"fmt"
	"iter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/perimetra/gwadmin/pkg/client"
)

// Prometheus metrics for cursor scans.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_search_pages_total",
		Help: "Total search pages fetched by endpoint",
	}, []string{"endpoint"})

	documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_search_documents_total",
		Help: "Total search documents streamed by endpoint",
	}, []string{"endpoint"})
)

// Config holds the scanner configuration.
type Config struct {
	// Doer executes the page requests (a *client.Client or *client.Session).
	Doer client.Doer

	// Query describes the scan.
	Query *Query

	// MaxPages caps the number of fetched pages. 0 means unbounded; the
	// empty page remains the normal terminal condition.
	MaxPages int
}

// Scanner streams pages and documents for one query. A scanner may be
// traversed multiple times; every traversal starts from the query's
// initial descriptor and fetches independently.
type Scanner struct {
	doer     client.Doer
	initial  *client.Request
	maxPages int
	logger   zerolog.Logger
}

// NewScanner validates the query and returns a scanner for it.
func NewScanner(cfg Config) (*Scanner, error) {
	if cfg.Doer == nil {
		return nil, fmt.Errorf("search: a Doer is required")
	}
	if cfg.Query == nil {
		return nil, fmt.Errorf("search: a Query is required")
	}
	initial, err := cfg.Query.build()
	if err != nil {
		return nil, err
	}

	return &Scanner{
		doer:     cfg.Doer,
		initial:  initial,
		maxPages: cfg.MaxPages,
		logger:   log.With().Str("component", "search").Logger(),
	}, nil
}

// scanState is the phase of one traversal.
type scanState int

const (
	stateFetch scanState = iota
	stateFlatten
	stateDone
	stateFailed
)

// scan is the per-traversal state machine. It is separate from the
// iterator plumbing so the transition logic stays testable on its own.
type scan struct {
	scanner *Scanner
	state   scanState
	req     *client.Request
	page    *Page
	pageIdx int
	err     error
}

func (s *Scanner) newScan() *scan {
	return &scan{scanner: s, state: stateFetch, req: s.initial}
}

// step advances the machine by exactly one transition. In stateFlatten the
// current page is waiting to be consumed; stepping past it derives the
// next descriptor from the page's continuation key.
func (sc *scan) step(ctx context.Context) {
	switch sc.state {
	case stateFetch:
		if err := ctx.Err(); err != nil {
			sc.err = err
			sc.state = stateFailed
			return
		}
		if sc.scanner.maxPages > 0 && sc.pageIdx >= sc.scanner.maxPages {
			sc.state = stateDone
			return
		}
		page, err := sc.scanner.fetchPage(ctx, sc.req, sc.pageIdx)
		if err != nil {
			sc.err = err
			sc.state = stateFailed
			return
		}
		if len(page.Hits) == 0 {
			// The empty page is the only regular terminal condition.
			sc.state = stateDone
			return
		}
		sc.page = page
		sc.pageIdx++
		sc.state = stateFlatten

	case stateFlatten:
		next, err := deriveNext(sc.page)
		if err != nil {
			sc.err = err
			sc.state = stateFailed
			return
		}
		sc.req = next
		sc.state = stateFetch

	case stateDone, stateFailed:
		// Terminal.
	}
}

// fetchPage dispatches one descriptor and decodes the result.
func (s *Scanner) fetchPage(ctx context.Context, req *client.Request, pageIdx int) (*Page, error) {
	resp, err := s.doer.Do(ctx, req)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("endpoint", req.Path).
			Int("page", pageIdx).
			Msg("Page fetch failed")
		return nil, fmt.Errorf("fetch page %d: %w", pageIdx, err)
	}

	var sr searchResponse
	if err := resp.DecodeJSON(&sr); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageIdx, err)
	}

	page := &Page{
		Request: req,
		Index:   pageIdx,
		Hits:    sr.Hits.Hits,
		Total:   sr.Hits.Total.Value,
	}
	if n := len(page.Hits); n > 0 {
		page.After = page.Hits[n-1].Sort
		if len(page.After) == 0 {
			// A server that ignores the sort spec would pin the scan to
			// the same page forever. Fail instead.
			return nil, fmt.Errorf("fetch page %d: hits carry no sort values, cannot continue", pageIdx)
		}
	}

	pagesTotal.WithLabelValues(req.Path).Inc()
	documentsTotal.WithLabelValues(req.Path).Add(float64(len(page.Hits)))

	s.logger.Debug().
		Str("endpoint", req.Path).
		Int("page", pageIdx).
		Int("hits", len(page.Hits)).
		Int64("total", page.Total).
		Msg("Page fetched")

	return page, nil
}

// Pages returns the lazy page sequence for one traversal. Fetching is
// strictly sequential: the next page is requested only when the consumer
// asks for it. On a fetch failure the sequence yields the error once and
// ends; pages already yielded stay delivered.
func (s *Scanner) Pages(ctx context.Context) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		sc := s.newScan()
		for {
			sc.step(ctx)
			switch sc.state {
			case stateFlatten:
				if !yield(sc.page, nil) {
					return
				}
			case stateDone:
				return
			case stateFailed:
				yield(nil, sc.err)
				return
			}
		}
	}
}

// Documents returns the flattened document sequence for one traversal.
// Every document carries its page's metadata (total match count at fetch
// time and the page ordinal).
func (s *Scanner) Documents(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		sc := s.newScan()
		for {
			sc.step(ctx)
			switch sc.state {
			case stateFlatten:
				meta := PageMeta{Total: sc.page.Total, Page: sc.page.Index}
				for _, hit := range sc.page.Hits {
					if !yield(Document{Hit: hit, Meta: meta}, nil) {
						return
					}
				}
			case stateDone:
				return
			case stateFailed:
				yield(Document{}, sc.err)
				return
			}
		}
	}
}
