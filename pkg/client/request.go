package client

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"
)

// BasicAuth carries credentials for endpoints that accept them. A session
// token always wins over basic auth when both are present.
type BasicAuth struct {
	Username string
	Password string
}

// Request describes one HTTP call against the platform. A descriptor is
// never mutated after it has been dispatched; derived requests are built
// with Clone and differ only in the fields the derivation replaces.
type Request struct {
	// Method defaults to GET.
	Method string

	// Path is the endpoint path relative to the base URL. Segments of the
	// form "{name}" are substituted from PathParams.
	Path string

	// PathParams supplies values for "{name}" segments in Path.
	PathParams map[string]string

	// Query parameters appended to the URL.
	Query url.Values

	// Headers set on this request. They win over the client's default
	// headers.
	Headers map[string]string

	// Body is JSON-encoded when non-nil. Mutually exclusive with RawBody.
	Body any

	// RawBody is sent verbatim (newline-delimited bulk payloads). Set
	// ContentType alongside it.
	RawBody     []byte
	ContentType string

	// BasicAuth is applied only when the executing client or session holds
	// no token.
	BasicAuth *BasicAuth

	// Timeout overrides the client's default timeout for this request.
	Timeout time.Duration
}

// Clone returns a copy of the descriptor whose maps, query values and raw
// body are independent of the original. Body is carried by reference:
// derivations replace it wholesale and never edit it in place.
func (r *Request) Clone() *Request {
	out := *r
	if r.PathParams != nil {
		out.PathParams = maps.Clone(r.PathParams)
	}
	if r.Headers != nil {
		out.Headers = maps.Clone(r.Headers)
	}
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = slices.Clone(v)
		}
	}
	if r.RawBody != nil {
		out.RawBody = slices.Clone(r.RawBody)
	}
	if r.BasicAuth != nil {
		auth := *r.BasicAuth
		out.BasicAuth = &auth
	}
	return &out
}

// expandPath substitutes "{name}" segments from params. Unresolved
// placeholders are an error so typos fail loudly instead of hitting the
// platform with a literal brace.
func expandPath(path string, params map[string]string) (string, error) {
	expanded := path
	for k, v := range params {
		expanded = strings.ReplaceAll(expanded, "{"+k+"}", url.PathEscape(v))
	}
	if strings.IndexByte(expanded, '{') >= 0 {
		return "", fmt.Errorf("path %q has an unresolved parameter", path)
	}
	return expanded, nil
}

// ParseHeader splits a "key:value" string on the first colon only, so
// values containing colons (URLs, timestamps) survive intact.
func ParseHeader(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", fmt.Errorf("header %q is not in key:value form", s)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", fmt.Errorf("header %q has an empty name", s)
	}
	return key, value, nil
}

// ParseHeaders converts a list of "key:value" strings into a header map.
func ParseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, err := ParseHeader(p)
		if err != nil {
			return nil, err
		}
		headers[k] = v
	}
	return headers, nil
}
