// Package bulk aggregates per-item operations into newline-delimited batch
// requests and maps the multi-status response back onto ordered per-item
// outcomes.
package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/perimetra/gwadmin/pkg/client"
)

// Prometheus metrics for batch submissions.
var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_bulk_batches_total",
		Help: "Total bulk batches submitted by endpoint",
	}, []string{"endpoint"})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_bulk_outcomes_total",
		Help: "Total bulk per-item outcomes by endpoint and result",
	}, []string{"endpoint", "result"})
)

var logger = log.With().Str("component", "bulk").Logger()

const (
	// ActionDelete removes a document by id.
	ActionDelete = "delete"

	// DefaultPath is the batch endpoint.
	DefaultPath = "/_bulk"

	// DefaultBatchSize bounds the operations per submitted batch.
	DefaultBatchSize = 500

	// NDJSONContentType is the newline-delimited JSON media type batch
	// endpoints expect.
	NDJSONContentType = "application/x-ndjson"
)

// Op is one per-item operation inside a batch.
type Op struct {
	Action string
	Index  string
	ID     string
}

// ItemError is the per-item failure detail the platform reports.
type ItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// Outcome is the per-item result of a batch, in submission order.
type Outcome struct {
	ID     string
	Index  string
	Status int
	Result string
	Err    *ItemError
}

// OK reports whether the item succeeded.
func (o Outcome) OK() bool {
	return o.Status >= 200 && o.Status < 300
}

// Options controls batch submission.
type Options struct {
	// Path is the batch endpoint. Empty means DefaultPath.
	Path string

	// FailOnError propagates an upstream call failure to the caller. When
	// false the failure is suppressed into zero outcomes: the lenient
	// default single-item deletions want.
	FailOnError bool

	// BatchSize bounds the operations per call for DeleteAll. Zero or
	// negative means DefaultBatchSize.
	BatchSize int

	// Concurrency bounds the batches in flight for DeleteAll. Zero or
	// negative means strictly sequential.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// itemResult is the wire shape nested under the action key of one response
// item.
type itemResult struct {
	Index  string     `json:"_index"`
	ID     string     `json:"_id"`
	Status int        `json:"status"`
	Result string     `json:"result"`
	Error  *ItemError `json:"error"`
}

// bulkResponse is the multi-status envelope.
type bulkResponse struct {
	Took   int                     `json:"took"`
	Errors bool                    `json:"errors"`
	Items  []map[string]itemResult `json:"items"`
}

// Execute submits ops as a single newline-delimited call and returns one
// outcome per op, in submission order. An upstream call failure is
// propagated or suppressed per Options.FailOnError; a malformed response
// always propagates.
func Execute(ctx context.Context, doer client.Doer, ops []Op, opts Options) ([]Outcome, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	opts = opts.withDefaults()

	body, err := encodeOps(ops)
	if err != nil {
		return nil, err
	}

	req := &client.Request{
		Method:      http.MethodPost,
		Path:        opts.Path,
		RawBody:     body,
		ContentType: NDJSONContentType,
	}

	resp, err := doer.Do(ctx, req)
	if err != nil {
		if opts.FailOnError {
			return nil, fmt.Errorf("bulk call: %w", err)
		}
		logger.Warn().
			Err(err).
			Str("endpoint", opts.Path).
			Int("ops", len(ops)).
			Msg("Bulk call failed, outcomes suppressed")
		return nil, nil
	}
	batchesTotal.WithLabelValues(opts.Path).Inc()

	var envelope bulkResponse
	if err := resp.DecodeJSON(&envelope); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if len(envelope.Items) != len(ops) {
		return nil, fmt.Errorf("bulk response carried %d outcomes for %d operations", len(envelope.Items), len(ops))
	}

	outcomes := make([]Outcome, 0, len(ops))
	for _, item := range envelope.Items {
		// Each response item is a single-key object keyed by the action.
		var res itemResult
		for _, v := range item {
			res = v
		}
		outcome := Outcome{
			ID:     res.ID,
			Index:  res.Index,
			Status: res.Status,
			Result: res.Result,
			Err:    res.Error,
		}
		result := "ok"
		if !outcome.OK() {
			result = "error"
		}
		outcomesTotal.WithLabelValues(opts.Path, result).Inc()
		outcomes = append(outcomes, outcome)
	}

	logger.Debug().
		Str("endpoint", opts.Path).
		Int("ops", len(ops)).
		Bool("errors", envelope.Errors).
		Msg("Bulk batch completed")

	return outcomes, nil
}

// Delete submits one batch deleting ids from index.
func Delete(ctx context.Context, doer client.Doer, index string, ids []string, opts Options) ([]Outcome, error) {
	ops := make([]Op, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, Op{Action: ActionDelete, Index: index, ID: id})
	}
	return Execute(ctx, doer, ops, opts)
}

// DeleteAll deletes ids from index in batches of Options.BatchSize.
// Batches run sequentially unless Options.Concurrency allows more; either
// way the outcomes come back in submission order.
func DeleteAll(ctx context.Context, doer client.Doer, index string, ids []string, opts Options) ([]Outcome, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	opts = opts.withDefaults()

	var batches [][]string
	for start := 0; start < len(ids); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}

	results := make([][]Outcome, len(batches))

	if opts.Concurrency == 1 {
		for i, batch := range batches {
			outcomes, err := Delete(ctx, doer, index, batch, opts)
			if err != nil {
				return nil, fmt.Errorf("batch %d: %w", i, err)
			}
			results[i] = outcomes
		}
	} else {
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(opts.Concurrency)
		for i, batch := range batches {
			group.Go(func() error {
				outcomes, err := Delete(groupCtx, doer, index, batch, opts)
				if err != nil {
					return fmt.Errorf("batch %d: %w", i, err)
				}
				results[i] = outcomes
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	}

	var flat []Outcome
	for _, outcomes := range results {
		flat = append(flat, outcomes...)
	}
	return flat, nil
}

// encodeOps renders ops as newline-delimited action records with a
// trailing newline.
func encodeOps(ops []Op) ([]byte, error) {
	var buf bytes.Buffer
	for i, op := range ops {
		if op.Action == "" {
			return nil, fmt.Errorf("op %d: action is required", i)
		}
		if op.ID == "" {
			return nil, fmt.Errorf("op %d: id is required", i)
		}
		meta := map[string]string{"_id": op.ID}
		if op.Index != "" {
			meta["_index"] = op.Index
		}
		line, err := json.Marshal(map[string]map[string]string{op.Action: meta})
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
