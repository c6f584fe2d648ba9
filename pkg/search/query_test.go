package search

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name     string
		query    *Query
		expected error
	}{
		{
			name: "valid query",
			query: NewQuery("/api/es/traffic/_search").
				SortAsc("@timestamp").
				Tiebreak("correlationId"),
		},
		{
			name:     "missing path",
			query:    NewQuery("").SortAsc("@timestamp").Tiebreak("correlationId"),
			expected: ErrMissingPath,
		},
		{
			name:     "missing sort",
			query:    NewQuery("/api/es/traffic/_search").Tiebreak("correlationId"),
			expected: ErrMissingSort,
		},
		{
			name:     "missing tiebreak",
			query:    NewQuery("/api/es/traffic/_search").SortAsc("@timestamp"),
			expected: ErrMissingTiebreak,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()

			if tt.expected == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.expected) {
				t.Errorf("Validate() = %v, want %v", err, tt.expected)
			}
		})
	}
}

func TestQueryValidate_NegativeSize(t *testing.T) {
	q := NewQuery("/api/es/traffic/_search").
		Size(-1).
		SortAsc("@timestamp").
		Tiebreak("correlationId")

	if err := q.Validate(); err == nil {
		t.Error("Expected an error for a negative size")
	}
}

func TestQueryValidate_TiebreakDuplicatesSort(t *testing.T) {
	q := NewQuery("/api/es/traffic/_search").
		SortAsc("@timestamp").
		Tiebreak("@timestamp")

	if err := q.Validate(); err == nil {
		t.Error("Expected an error when the tiebreak duplicates a sort field")
	}
}

func TestQueryBuild_WireFormat(t *testing.T) {
	q := NewQuery("/api/es/traffic/_search").
		Size(2).
		Must(Term("serviceName", "billing")).
		SortAsc("@timestamp").
		Tiebreak("correlationId")

	req, err := q.build()
	if err != nil {
		t.Fatalf("build() failed: %v", err)
	}

	if req.Method != "POST" {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if req.Path != "/api/es/traffic/_search" {
		t.Errorf("Path = %q, want the query path", req.Path)
	}

	payload, err := json.Marshal(req.Body)
	if err != nil {
		t.Fatalf("Marshal body failed: %v", err)
	}
	expected := `{"size":2,"query":{"bool":{"must":[{"term":{"serviceName":"billing"}}]}},` +
		`"sort":[{"@timestamp":"asc"},{"correlationId":"desc"}]}`
	if string(payload) != expected {
		t.Errorf("Body = %s, want %s", payload, expected)
	}
}

func TestQueryBuild_DefaultSize(t *testing.T) {
	q := NewQuery("/api/es/traffic/_search").
		SortAsc("@timestamp").
		Tiebreak("correlationId")

	req, err := q.build()
	if err != nil {
		t.Fatalf("build() failed: %v", err)
	}

	body := req.Body.(*searchBody)
	if body.Size != DefaultPageSize {
		t.Errorf("Size = %d, want the default %d", body.Size, DefaultPageSize)
	}
}

func TestQueryBuild_TiebreakAlwaysLastAndDescending(t *testing.T) {
	q := NewQuery("/api/es/traffic/_search").
		SortAsc("@timestamp").
		SortDesc("status").
		Tiebreak("correlationId")

	req, err := q.build()
	if err != nil {
		t.Fatalf("build() failed: %v", err)
	}

	body := req.Body.(*searchBody)
	if len(body.Sort) != 3 {
		t.Fatalf("Sort entries = %d, want 3", len(body.Sort))
	}
	last := body.Sort[2]
	if last["correlationId"] != "desc" {
		t.Errorf("Last sort entry = %v, want the descending tiebreak", last)
	}
}

func TestQueryBuild_AfterSeedsContinuation(t *testing.T) {
	cursor := []any{int64(1724550000123), "corr-042"}
	q := NewQuery("/api/es/traffic/_search").
		SortAsc("@timestamp").
		Tiebreak("correlationId").
		After(cursor)

	req, err := q.build()
	if err != nil {
		t.Fatalf("build() failed: %v", err)
	}

	body := req.Body.(*searchBody)
	if len(body.SearchAfter) != 2 || body.SearchAfter[1] != "corr-042" {
		t.Errorf("SearchAfter = %v, want the seeded cursor", body.SearchAfter)
	}
}

func TestRangeClause_OpenBounds(t *testing.T) {
	payload, err := json.Marshal(Range("@timestamp", int64(1000), nil))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(payload) != `{"range":{"@timestamp":{"gte":1000}}}` {
		t.Errorf("Range = %s, want the open upper bound omitted", payload)
	}
}

func TestTermsClause(t *testing.T) {
	payload, err := json.Marshal(Terms("status", 404, 500))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(payload) != `{"terms":{"status":[404,500]}}` {
		t.Errorf("Terms = %s, want both values listed", payload)
	}
}
