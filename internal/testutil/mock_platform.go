// Package testutil provides testing fakes for gwadmin.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SessionCookie mirrors the cookie name the platform issues on login.
const SessionCookie = "GWSESSION"

// TrafficDoc is one stored traffic record in the mock index. Documents are
// served in (timestamp ascending, id descending) order with sort values
// [timestamp, id], matching the canonical traffic sort.
type TrafficDoc struct {
	ID        string
	Timestamp int64
	Service   string
	Status    int
}

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPlatform is a configurable in-process platform server: login and
// session handling, a cursor-paged traffic index, a bulk delete endpoint
// that mutates the index, numbered-page application listings, and a plain
// user array.
type MockPlatform struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	username    string
	password    string
	token       string
	requireAuth bool

	docs         []TrafficDoc
	apps         []string
	appsPageSize int
	users        []string

	// Tracking
	RequestCount int
	PathCounts   map[string]int
	LastHeader   http.Header
}

// NewMockPlatform starts a mock platform with no data and authentication
// disabled.
func NewMockPlatform() *MockPlatform {
	mock := &MockPlatform{
		handlers:     make(map[string]http.HandlerFunc),
		token:        "tok-mock-session",
		appsPageSize: 10,
		PathCounts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.route(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPlatform) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPlatform) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPlatform) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastHeader = nil
}

// EnableAuth turns on session checking: every endpoint except login then
// requires the session cookie issued for these credentials.
func (m *MockPlatform) EnableAuth(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.password = password
	m.requireAuth = true
}

// Token returns the session token the mock issues on login.
func (m *MockPlatform) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SeedTraffic replaces the traffic index contents.
func (m *MockPlatform) SeedTraffic(docs []TrafficDoc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append([]TrafficDoc(nil), docs...)
	sortTraffic(m.docs)
}

// TrafficCount returns the documents still in the index.
func (m *MockPlatform) TrafficCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// SeedApps replaces the application listing, served as numbered pages of
// the given size.
func (m *MockPlatform) SeedApps(pageSize int, items ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appsPageSize = pageSize
	m.apps = append([]string(nil), items...)
}

// SeedUsers replaces the user listing, served as one plain array.
func (m *MockPlatform) SeedUsers(items ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append([]string(nil), items...)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockPlatform) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockPlatform) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// PathCount returns how many requests hit the given path.
func (m *MockPlatform) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetRequestCount returns the total number of requests served.
func (m *MockPlatform) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockPlatform) route(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/login" {
		m.handleLogin(w, r)
		return
	}
	if !m.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, `{"error":"unauthorized"}`)
		return
	}

	switch {
	case r.URL.Path == "/api/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/es/traffic/_search":
		m.handleSearch(w, r)
	case r.URL.Path == "/api/es/traffic/_bulk" || r.URL.Path == "/_bulk":
		m.handleBulk(w, r)
	case r.URL.Path == "/api/v1/apps":
		m.handleApps(w, r)
	case r.URL.Path == "/api/v1/users":
		writeJSON(w, http.StatusOK, "["+strings.Join(m.snapshotUsers(), ",")+"]")
	default:
		writeJSON(w, http.StatusNotFound, `{"error":"not found"}`)
	}
}

func (m *MockPlatform) authorized(r *http.Request) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.requireAuth {
		return true
	}
	cookie, err := r.Cookie(SessionCookie)
	return err == nil && cookie.Value == m.token
}

func (m *MockPlatform) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"malformed credentials"}`)
		return
	}

	m.mu.RLock()
	ok := !m.requireAuth || (creds.Username == m.username && creds.Password == m.password)
	token := m.token
	m.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, `{"error":"bad credentials"}`)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"token":%q}`, token))
}

// searchRequest is the subset of the search body the mock interprets.
type searchRequest struct {
	Size  int `json:"size"`
	Query struct {
		Bool struct {
			Must []map[string]json.RawMessage `json:"must"`
		} `json:"bool"`
	} `json:"query"`
	SearchAfter []any `json:"search_after"`
}

func (m *MockPlatform) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"malformed search body"}`)
		return
	}
	size := req.Size
	if size <= 0 {
		size = 10
	}

	m.mu.RLock()
	var matched []TrafficDoc
	for _, doc := range m.docs {
		if matchesQuery(doc, req.Query.Bool.Must) {
			matched = append(matched, doc)
		}
	}
	m.mu.RUnlock()

	start := 0
	if len(req.SearchAfter) == 2 {
		ts := asInt64(req.SearchAfter[0])
		id, _ := req.SearchAfter[1].(string)
		start = len(matched)
		for i, doc := range matched {
			if doc.Timestamp > ts || (doc.Timestamp == ts && doc.ID < id) {
				start = i
				break
			}
		}
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	hits := make([]string, 0, end-start)
	for _, doc := range matched[start:end] {
		source, _ := json.Marshal(map[string]any{
			"correlationId": doc.ID,
			"service":       doc.Service,
			"status":        doc.Status,
			"@timestamp":    doc.Timestamp,
		})
		hits = append(hits, fmt.Sprintf(`{"_id":%q,"_index":"traffic","_source":%s,"sort":[%d,%q]}`,
			doc.ID, source, doc.Timestamp, doc.ID))
	}

	body := fmt.Sprintf(`{"took":2,"hits":{"total":{"value":%d,"relation":"eq"},"hits":[%s]}}`,
		len(matched), strings.Join(hits, ","))
	writeJSON(w, http.StatusOK, body)
}

func (m *MockPlatform) handleBulk(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"unreadable body"}`)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var items []string
	anyErrors := false
	for _, line := range strings.Split(strings.TrimSuffix(string(payload), "\n"), "\n") {
		if line == "" {
			continue
		}
		var record map[string]struct {
			ID    string `json:"_id"`
			Index string `json:"_index"`
		}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"error":"malformed bulk line"}`)
			return
		}
		for action, meta := range record {
			idx := -1
			for i, doc := range m.docs {
				if doc.ID == meta.ID {
					idx = i
					break
				}
			}
			if idx < 0 {
				anyErrors = true
				items = append(items, fmt.Sprintf(
					`{%q:{"_id":%q,"_index":%q,"status":404,"result":"not_found","error":{"type":"document_missing_exception","reason":"document %s is missing"}}}`,
					action, meta.ID, meta.Index, meta.ID))
				continue
			}
			m.docs = append(m.docs[:idx], m.docs[idx+1:]...)
			items = append(items, fmt.Sprintf(
				`{%q:{"_id":%q,"_index":%q,"status":200,"result":"deleted"}}`,
				action, meta.ID, meta.Index))
		}
	}

	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"took":3,"errors":%t,"items":[%s]}`,
		anyErrors, strings.Join(items, ",")))
}

func (m *MockPlatform) handleApps(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, `{"error":"bad page"}`)
			return
		}
		page = n
	}

	m.mu.RLock()
	apps := m.apps
	pageSize := m.appsPageSize
	m.mu.RUnlock()

	totalPages := (len(apps) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(apps) {
		start = len(apps)
	}
	if end > len(apps) {
		end = len(apps)
	}

	body := fmt.Sprintf(`{"page":{"current":%d,"total_pages":%d},"data":[%s]}`,
		page, totalPages, strings.Join(apps[start:end], ","))
	writeJSON(w, http.StatusOK, body)
}

func (m *MockPlatform) snapshotUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.users...)
}

// matchesQuery applies term and range clauses against a document. Only the
// fields the traffic schema carries are interpreted.
func matchesQuery(doc TrafficDoc, must []map[string]json.RawMessage) bool {
	for _, clause := range must {
		if raw, ok := clause["term"]; ok {
			var term map[string]any
			if err := json.Unmarshal(raw, &term); err != nil {
				return false
			}
			for field, expected := range term {
				if !fieldEquals(doc, field, expected) {
					return false
				}
			}
		}
		if raw, ok := clause["range"]; ok {
			var ranges map[string]struct {
				GTE *int64 `json:"gte"`
				LTE *int64 `json:"lte"`
			}
			if err := json.Unmarshal(raw, &ranges); err != nil {
				return false
			}
			for field, bounds := range ranges {
				value, ok := fieldInt(doc, field)
				if !ok {
					return false
				}
				if bounds.GTE != nil && value < *bounds.GTE {
					return false
				}
				if bounds.LTE != nil && value > *bounds.LTE {
					return false
				}
			}
		}
	}
	return true
}

func fieldEquals(doc TrafficDoc, field string, expected any) bool {
	switch field {
	case "service":
		return doc.Service == expected
	case "correlationId":
		return doc.ID == expected
	case "status":
		return int64(doc.Status) == asInt64(expected)
	default:
		return false
	}
}

func fieldInt(doc TrafficDoc, field string) (int64, bool) {
	switch field {
	case "@timestamp":
		return doc.Timestamp, true
	case "status":
		return int64(doc.Status), true
	default:
		return 0, false
	}
}

func sortTraffic(docs []TrafficDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Timestamp != docs[j].Timestamp {
			return docs[i].Timestamp < docs[j].Timestamp
		}
		return docs[i].ID > docs[j].ID
	})
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
