package search

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/perimetra/gwadmin/pkg/client"
)

// DefaultPageSize is used when a query does not set its own size.
const DefaultPageSize = 500

// Validation errors returned by Query.Validate.
var (
	// ErrMissingPath is returned for a query without a search endpoint.
	ErrMissingPath = errors.New("search: query needs an endpoint path")

	// ErrMissingSort is returned for a query without a primary sort field.
	ErrMissingSort = errors.New("search: query needs a primary sort field")

	// ErrMissingTiebreak is returned for a query without a unique tiebreak
	// field. Scanning without one can stall or skip documents at page
	// boundaries, so it is rejected up front.
	ErrMissingTiebreak = errors.New("search: query needs a unique tiebreak field")
)

// Clause is one filter inside the query's bool/must list.
type Clause map[string]any

// Term matches documents whose field equals value.
func Term(field string, value any) Clause {
	return Clause{"term": map[string]any{field: value}}
}

// Terms matches documents whose field equals any of the values.
func Terms(field string, values ...any) Clause {
	return Clause{"terms": map[string]any{field: values}}
}

// Range bounds a field between gte and lte. A nil bound is left open.
func Range(field string, gte, lte any) Clause {
	bounds := map[string]any{}
	if gte != nil {
		bounds["gte"] = gte
	}
	if lte != nil {
		bounds["lte"] = lte
	}
	return Clause{"range": map[string]any{field: bounds}}
}

type sortField struct {
	field string
	order string
}

// Query describes one cursor scan: endpoint, page size, filters, sort
// spec and the mandatory unique tiebreak. The zero value is not usable;
// start with NewQuery.
type Query struct {
	path     string
	size     int
	must     []Clause
	sorts    []sortField
	tiebreak string
	after    []any
}

// NewQuery starts a query against the given search endpoint path.
func NewQuery(path string) *Query {
	return &Query{path: path}
}

// Size sets the page size (default DefaultPageSize).
func (q *Query) Size(n int) *Query {
	q.size = n
	return q
}

// Must appends filter clauses; all of them have to match.
func (q *Query) Must(clauses ...Clause) *Query {
	q.must = append(q.must, clauses...)
	return q
}

// SortAsc appends an ascending sort field. The first sort field should be
// the monotonic, time-like key the index is scanned along.
func (q *Query) SortAsc(field string) *Query {
	q.sorts = append(q.sorts, sortField{field: field, order: "asc"})
	return q
}

// SortDesc appends a descending sort field.
func (q *Query) SortDesc(field string) *Query {
	q.sorts = append(q.sorts, sortField{field: field, order: "desc"})
	return q
}

// Tiebreak names the unique field that breaks ties between documents
// sharing the same sort values. It is always sorted descending and always
// placed last in the sort spec. Required.
func (q *Query) Tiebreak(field string) *Query {
	q.tiebreak = field
	return q
}

// After seeds the continuation key, resuming a scan behind the given sort
// tuple (for checkpointed exports).
func (q *Query) After(cursor []any) *Query {
	q.after = cursor
	return q
}

// Validate checks the query before any request is made.
func (q *Query) Validate() error {
	if q.path == "" {
		return ErrMissingPath
	}
	if q.size < 0 {
		return fmt.Errorf("search: size must be positive, got %d", q.size)
	}
	if len(q.sorts) == 0 {
		return ErrMissingSort
	}
	if q.tiebreak == "" {
		return ErrMissingTiebreak
	}
	for _, s := range q.sorts {
		if s.field == q.tiebreak {
			return fmt.Errorf("search: tiebreak %q duplicates a sort field", q.tiebreak)
		}
	}
	return nil
}

// searchBody is the wire form of one page request.
type searchBody struct {
	Size        int                 `json:"size"`
	Query       *boolWrapper        `json:"query,omitempty"`
	Sort        []map[string]string `json:"sort"`
	SearchAfter []any               `json:"search_after,omitempty"`
}

type boolWrapper struct {
	Bool boolQuery `json:"bool"`
}

type boolQuery struct {
	Must []any `json:"must"`
}

// build renders the query into the descriptor for its first page.
func (q *Query) build() (*client.Request, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	size := q.size
	if size == 0 {
		size = DefaultPageSize
	}

	sorts := make([]map[string]string, 0, len(q.sorts)+1)
	for _, s := range q.sorts {
		sorts = append(sorts, map[string]string{s.field: s.order})
	}
	sorts = append(sorts, map[string]string{q.tiebreak: "desc"})

	body := &searchBody{Size: size, Sort: sorts}
	if len(q.must) > 0 {
		must := make([]any, len(q.must))
		for i, c := range q.must {
			must[i] = c
		}
		body.Query = &boolWrapper{Bool: boolQuery{Must: must}}
	}
	if len(q.after) > 0 {
		body.SearchAfter = q.after
	}

	return &client.Request{
		Method: http.MethodPost,
		Path:   q.path,
		Body:   body,
	}, nil
}
