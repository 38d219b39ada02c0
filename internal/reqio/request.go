// Package reqio implements the broker's raw HTTP/1.1 request envelope:
// framing, JSON decoding, and the consumable entity path cursor (spec
// §4.1), grounded on
// original_source/backend/requests/requests.go's Request class.
package reqio

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
)

var pathPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)*$`)

// Method is one of the three methods the broker understands.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
	MethodPut  Method = "PUT"
)

// Request is the parsed HTTP envelope plus JSON body, with a zero-based
// cursor over the dotted entity path.
type Request struct {
	Method Method

	raw           map[string]interface{}
	pathFragments []string
	rootName      string
	cursor        int
}

// Parse splits the raw bytes at the HTTP framing boundary, validates the
// request line, and decodes the JSON body. Fails with brokererr.Validation
// on any framing or JSON error (§4.1).
func Parse(raw []byte) (*Request, error) {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, brokererr.New(brokererr.Validation, "empty request")
	}

	topHeaders := strings.Split(lines[0], " ")
	if len(topHeaders) != 3 {
		return nil, brokererr.New(brokererr.Validation, "malformed request line")
	}
	if topHeaders[1] != "/" {
		return nil, brokererr.New(brokererr.Validation, "server only supports root HTTP query")
	}
	if topHeaders[2] != "HTTP/1.1" {
		return nil, brokererr.New(brokererr.Validation, "only HTTP/1.1 is supported")
	}

	method := Method(topHeaders[0])
	switch method {
	case MethodGet, MethodPost, MethodPut:
	default:
		return nil, brokererr.New(brokererr.Validation, "unsupported method %q: use GET to query, POST to allocate, PUT to create", topHeaders[0])
	}

	content := string(raw)
	if idx := strings.LastIndex(content, "\r\n\r\n"); idx >= 0 {
		content = content[idx+4:]
	}

	var body map[string]interface{}
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return nil, brokererr.Wrap(brokererr.Validation, err, "poorly formatted request: could not parse the request body")
	}

	req := &Request{Method: method, raw: body}

	if entity, ok := body["entity"].(string); ok && entity != "" {
		req.pathFragments = strings.Split(entity, ".")
		req.rootName = req.pathFragments[0]
	}

	return req, nil
}

// Validate applies method-specific schema requirements (§4.1).
func (r *Request) Validate() error {
	if r.raw == nil {
		return brokererr.New(brokererr.Validation, "request data is nil")
	}
	if r.Method == MethodPut {
		// Schema checked by the tree builder.
		return nil
	}
	entity, ok := r.raw["entity"].(string)
	if !ok || entity == "" {
		return brokererr.New(brokererr.Validation, "entity path not specified in request")
	}
	if !pathPattern.MatchString(entity) {
		return brokererr.New(brokererr.Validation, "requested path is not legal")
	}

	switch r.Method {
	case MethodPost:
		if _, ok := r.raw["data"].(map[string]interface{}); !ok {
			return brokererr.New(brokererr.Validation, "POST request missing data object")
		}
	case MethodGet:
		if _, ok := r.raw["recursive"].(bool); !ok {
			return brokererr.New(brokererr.Validation, "GET request missing boolean recursive field")
		}
	}
	return nil
}

// NextRoute returns the current path fragment and advances the cursor.
// Fails with brokererr.RouteDoesNotExist once the path is exhausted.
func (r *Request) NextRoute() (string, error) {
	if r.cursor == len(r.pathFragments) {
		return "", brokererr.New(brokererr.RouteDoesNotExist, "bottom of request: no further route to extract")
	}
	next := r.pathFragments[r.cursor]
	r.cursor++
	return next, nil
}

// EntityPath is the raw dotted entity path as submitted.
func (r *Request) EntityPath() string {
	if entity, ok := r.raw["entity"].(string); ok {
		return entity
	}
	return ""
}

// RootName is the first path fragment (the organization name).
func (r *Request) RootName() string { return r.rootName }

// CurrentName is the fragment most recently returned by NextRoute.
func (r *Request) CurrentName() string {
	if r.cursor == 0 {
		return ""
	}
	return r.pathFragments[r.cursor-1]
}

// Data is the POST body's "data" object.
func (r *Request) Data() map[string]interface{} {
	if data, ok := r.raw["data"].(map[string]interface{}); ok {
		return data
	}
	return nil
}

// Recursive is the GET request's "recursive" flag.
func (r *Request) Recursive() bool {
	if v, ok := r.raw["recursive"].(bool); ok {
		return v
	}
	return false
}

// RawRequest is the full decoded JSON body.
func (r *Request) RawRequest() map[string]interface{} { return r.raw }

// Fields is the GET request's optional "fields" projection list: a set
// of dotted paths to pull out of an otherwise full query result.
func (r *Request) Fields() []string {
	raw, ok := r.raw["fields"].([]interface{})
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			fields = append(fields, s)
		}
	}
	return fields
}

// Headers lists the request body's top-level keys.
func (r *Request) Headers() []string {
	keys := make([]string, 0, len(r.raw))
	for k := range r.raw {
		keys = append(keys, k)
	}
	return keys
}
