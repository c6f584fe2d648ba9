// Package listing streams items from endpoints that carry no cursor:
// plain-array responses and numbered pages. A minimum delay between
// consecutive emissions keeps the per-item follow-up traffic a consumer
// typically issues from flooding the platform.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/perimetra/gwadmin/pkg/client"
)

// Prometheus metrics for listings.
var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_listing_items_total",
		Help: "Total listing items emitted by endpoint",
	}, []string{"endpoint"})

	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_listing_pages_total",
		Help: "Total listing pages fetched by endpoint",
	}, []string{"endpoint"})
)

const (
	// DefaultDelay is the minimum gap between two emitted items.
	DefaultDelay = 50 * time.Millisecond

	// DefaultPageParam is the query parameter carrying the page number on
	// numbered-page endpoints.
	DefaultPageParam = "page"
)

// Predicate reports whether a fetched item should be emitted. Items
// rejected here cost no delay.
type Predicate func(item json.RawMessage) bool

// Config configures a Lister.
type Config struct {
	// Doer executes the listing requests.
	Doer client.Doer

	// Delay is the minimum time between two consecutive emissions. Zero
	// disables throttling and emits synchronously.
	Delay time.Duration

	// PageParam names the page-number query parameter. Empty means
	// DefaultPageParam.
	PageParam string

	// Sleep schedules the inter-item wait. Nil means a timer that honors
	// context cancellation. Tests inject a recording implementation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns a Config with the standard throttle applied.
func DefaultConfig(doer client.Doer) Config {
	return Config{
		Doer:      doer,
		Delay:     DefaultDelay,
		PageParam: DefaultPageParam,
	}
}

// Lister converts array and numbered-page endpoints into lazy item
// sequences.
type Lister struct {
	doer      client.Doer
	delay     time.Duration
	pageParam string
	sleep     func(context.Context, time.Duration) error
	logger    zerolog.Logger
}

// NewLister validates the configuration and returns a Lister.
func NewLister(cfg Config) (*Lister, error) {
	if cfg.Doer == nil {
		return nil, fmt.Errorf("listing: doer is required")
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("listing: delay must not be negative, got %s", cfg.Delay)
	}
	pageParam := cfg.PageParam
	if pageParam == "" {
		pageParam = DefaultPageParam
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = waitContext
	}
	return &Lister{
		doer:      cfg.Doer,
		delay:     cfg.Delay,
		pageParam: pageParam,
		sleep:     sleep,
		logger:    log.With().Str("component", "listing").Logger(),
	}, nil
}

// Items fetches a single full-array endpoint and emits its elements one by
// one, spaced by the configured delay. Predicates run before the delay is
// spent, so filtered-out items cost nothing.
func (l *Lister) Items(ctx context.Context, req *client.Request, preds ...Predicate) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		resp, err := l.doer.Do(ctx, req)
		if err != nil {
			l.logger.Error().Err(err).Str("endpoint", req.Path).Msg("Listing fetch failed")
			yield(nil, fmt.Errorf("fetch listing: %w", err))
			return
		}

		var items []json.RawMessage
		if err := resp.DecodeJSON(&items); err != nil {
			yield(nil, fmt.Errorf("decode listing: %w", err))
			return
		}
		pagesTotal.WithLabelValues(req.Path).Inc()

		l.logger.Debug().
			Str("endpoint", req.Path).
			Int("items", len(items)).
			Dur("delay_ms", l.delay).
			Msg("Listing fetched")

		em := &emitter{lister: l, endpoint: req.Path, yield: yield}
		em.emit(ctx, items, preds)
	}
}

// pagedEnvelope is the numbered-page wire shape.
type pagedEnvelope struct {
	Page struct {
		Current    int `json:"current"`
		TotalPages int `json:"total_pages"`
	} `json:"page"`
	Data []json.RawMessage `json:"data"`
}

// PagedItems walks a numbered-page endpoint, fetching pages sequentially
// while the current page differs from the reported total, and emits the
// page items with the same throttle as Items. The page number is injected
// as a query parameter on a clone of the descriptor; the caller's request
// is never modified. An empty data page terminates the walk regardless of
// the page arithmetic.
func (l *Lister) PagedItems(ctx context.Context, req *client.Request, preds ...Predicate) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		em := &emitter{lister: l, endpoint: req.Path, yield: yield}

		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			pageReq := req.Clone()
			if pageReq.Query == nil {
				pageReq.Query = url.Values{}
			}
			pageReq.Query.Set(l.pageParam, strconv.Itoa(page))

			resp, err := l.doer.Do(ctx, pageReq)
			if err != nil {
				l.logger.Error().
					Err(err).
					Str("endpoint", req.Path).
					Int("page", page).
					Msg("Listing page fetch failed")
				yield(nil, fmt.Errorf("fetch page %d: %w", page, err))
				return
			}

			var envelope pagedEnvelope
			if err := resp.DecodeJSON(&envelope); err != nil {
				yield(nil, fmt.Errorf("decode page %d: %w", page, err))
				return
			}
			pagesTotal.WithLabelValues(req.Path).Inc()

			l.logger.Debug().
				Str("endpoint", req.Path).
				Int("page", envelope.Page.Current).
				Int("total_pages", envelope.Page.TotalPages).
				Int("items", len(envelope.Data)).
				Msg("Listing page fetched")

			if !em.emit(ctx, envelope.Data, preds) {
				return
			}
			if len(envelope.Data) == 0 {
				return
			}
			if envelope.Page.Current == envelope.Page.TotalPages {
				return
			}
			// Trust the server's idea of the current page; the next
			// iteration asks for the one after it.
			page = envelope.Page.Current
		}
	}
}

// emitter spaces emissions across page boundaries: the first item of a
// follow-up page still waits on the previous page's last emission.
type emitter struct {
	lister   *Lister
	endpoint string
	yield    func(json.RawMessage, error) bool
	emitted  int
}

// emit yields every item that passes the predicates, sleeping between
// consecutive emissions. It reports false once the consumer stopped or the
// wait failed; the failure has already been yielded.
func (e *emitter) emit(ctx context.Context, items []json.RawMessage, preds []Predicate) bool {
	for _, item := range items {
		if !matches(item, preds) {
			continue
		}
		if e.emitted > 0 && e.lister.delay > 0 {
			if err := e.lister.sleep(ctx, e.lister.delay); err != nil {
				e.yield(nil, err)
				return false
			}
		}
		if !e.yield(item, nil) {
			return false
		}
		e.emitted++
		itemsTotal.WithLabelValues(e.endpoint).Inc()
	}
	return true
}

func matches(item json.RawMessage, preds []Predicate) bool {
	for _, pred := range preds {
		if !pred(item) {
			return false
		}
	}
	return true
}

// waitContext blocks for d or until ctx is done, whichever comes first.
func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
