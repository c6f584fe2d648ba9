// Package search streams documents out of the platform's traffic index
// through cursor pagination.
//
// The index caps offset paging at a few thousand documents, so deep reads
// continue from a sort-value cursor instead: every page is requested with
// the previous page's last sort tuple as its continuation key. A query
// must carry a unique tiebreak field; without it, documents sharing a
// primary sort value could repeat or vanish at page boundaries, and a
// page full of identical keys would loop forever. Validation rejects such
// queries before the first request.
//
// Example usage:
//
//	q := search.NewQuery("/api/es/traffic/_search").
//		Size(500).
//		Must(search.Term("serviceName", "billing"), search.Range("@timestamp", from, to)).
//		SortAsc("@timestamp").
//		Tiebreak("correlationId")
//
//	scanner, err := search.NewScanner(search.Config{Doer: session, Query: q})
//	for doc, err := range scanner.Documents(ctx) {
//		...
//	}
//
// Pages are fetched strictly one at a time; the consumer's range loop pulls
// the next page only after the current one is drained. Termination is the
// first empty page, never a count comparison, so totals that drift while
// the scan runs cannot cut the stream short.
package search
