// Package metrics provides the centralized Prometheus registry reference
// for gwadmin. All metrics are defined in their owning packages (client,
// search, listing, bulk, checkpoint, retry) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by gwadmin. All metrics
// are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - gwadmin_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - gwadmin_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - gwadmin_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Search Metrics (pkg/search):
//   - gwadmin_search_pages_total{endpoint} (Counter): Cursor pages fetched
//   - gwadmin_search_documents_total{endpoint} (Counter): Documents streamed
//
// Listing Metrics (pkg/listing):
//   - gwadmin_listing_pages_total{endpoint} (Counter): Listing pages fetched
//   - gwadmin_listing_items_total{endpoint} (Counter): Items emitted after filtering
//
// Bulk Metrics (pkg/bulk):
//   - gwadmin_bulk_batches_total{endpoint} (Counter): Batches submitted
//   - gwadmin_bulk_outcomes_total{endpoint, result} (Counter): Per-item outcomes by result (ok, error)
//
// Checkpoint Metrics (pkg/checkpoint):
//   - gwadmin_checkpoint_saves_total{name} (Counter): Checkpoint writes
//   - gwadmin_checkpoint_loads_total{name, result} (Counter): Checkpoint reads by result (hit, miss)
//
// Retry Metrics (pkg/retry):
//   - gwadmin_retries_total{error_class} (Counter): Retry attempts by error class
//   - gwadmin_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - gwadmin_retry_exhausted_total{error_class} (Counter): Calls that exhausted max attempts
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(gwadmin_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(gwadmin_request_duration_seconds_bucket[5m]))
//
//   # Export Throughput
//   rate(gwadmin_search_documents_total[5m])
//
//   # Bulk Failure Share
//   sum(rate(gwadmin_bulk_outcomes_total{result="error"}[5m])) /
//   sum(rate(gwadmin_bulk_outcomes_total[5m]))
