package search

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/perimetra/gwadmin/pkg/client"
)

// Hit is one raw document as the index returns it.
type Hit struct {
	ID     string          `json:"_id"`
	Index  string          `json:"_index"`
	Score  *float64        `json:"_score"`
	Source json.RawMessage `json:"_source"`
	Sort   []any           `json:"sort"`
}

// Total is the index's total match count. Older deployments return a bare
// integer, newer ones an object with value and relation; both decode.
type Total struct {
	Value    int64
	Relation string
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Total) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		t.Value = obj.Value
		t.Relation = obj.Relation
		return nil
	}
	t.Relation = "eq"
	return json.Unmarshal(data, &t.Value)
}

type hitsEnvelope struct {
	Total Total `json:"total"`
	Hits  []Hit `json:"hits"`
}

// searchResponse is the wire form of one page response.
type searchResponse struct {
	Took int          `json:"took"`
	Hits hitsEnvelope `json:"hits"`
}

// Page pairs the descriptor that was dispatched with its decoded result.
// Pages are immutable once fetched.
type Page struct {
	// Request is the descriptor this page was fetched with.
	Request *client.Request

	// Index is the 0-based fetch ordinal within the scan.
	Index int

	// Hits in server order.
	Hits []Hit

	// Total is the index's match count at fetch time. Metadata only; it
	// never drives termination.
	Total int64

	// After is the continuation key: the sort tuple of the last hit.
	// Nil on an empty page.
	After []any
}

// PageMeta is the page-level metadata attached to every document at
// flatten time.
type PageMeta struct {
	// Total match count at the time this document's page was fetched.
	Total int64

	// Page is the fetch ordinal of the document's page.
	Page int
}

// Document is one hit enriched with its page's metadata.
type Document struct {
	Hit
	Meta PageMeta
}

// deriveNext builds the descriptor for the page after prev: a copy of
// prev's request whose continuation key is prev's last sort tuple. No
// other field changes, and prev's request is left untouched.
func deriveNext(prev *Page) (*client.Request, error) {
	body, ok := prev.Request.Body.(*searchBody)
	if !ok {
		return nil, fmt.Errorf("search: page %d carries an unexpected body type %T", prev.Index, prev.Request.Body)
	}

	next := prev.Request.Clone()
	nextBody := *body
	nextBody.SearchAfter = prev.After
	next.Body = &nextBody
	return next, nil
}
