// Package gateway implements the method dispatcher (spec §4.9): maps an
// HTTP method to build-org / allocate / query, and normalizes every
// outcome to the closed status-code set (§7). Grounded on
// original_source/backend/gateway/client_connection.go's
// ClientConnection._do_task error-to-status dispatch chain and
// response_formats.go's Response envelope.
package gateway

import (
	"context"
	"strings"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/entity"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/pathutil"
	"github.com/R3E-Network/resource-broker/internal/reqio"
	"github.com/R3E-Network/resource-broker/internal/rootauthority"
	"github.com/R3E-Network/resource-broker/internal/treebuilder"
)

// Dispatcher routes a parsed Request to the tree builder, the entity
// tree, or a sub-tree query, and reports the result as a status code
// plus JSON-serializable payload.
type Dispatcher struct {
	Authority *rootauthority.Authority
	Builder   *treebuilder.Builder
	Store     *ledger.Store
}

// New builds a Dispatcher rooted at dataRoot.
func New(dataRoot string, store *ledger.Store) *Dispatcher {
	return &Dispatcher{
		Authority: rootauthority.New(dataRoot),
		Builder:   treebuilder.New(dataRoot),
		Store:     store,
	}
}

// Response is the broker's JSON envelope: a status code plus payload
// (§4.9 "Responses are JSON with statusCode + payload").
type Response struct {
	StatusCode int
	Payload    interface{}
}

// Handle parses and dispatches a single raw HTTP/1.1 request.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) Response {
	req, err := reqio.Parse(raw)
	if err != nil {
		return errorResponse(err)
	}

	switch req.Method {
	case reqio.MethodPut:
		return d.handlePut(req)
	case reqio.MethodPost:
		return d.handlePost(ctx, req)
	case reqio.MethodGet:
		return d.handleGet(req)
	default:
		return errorResponse(brokererr.New(brokererr.Validation, "unsupported method"))
	}
}

func (d *Dispatcher) handlePut(req *reqio.Request) Response {
	if err := d.Builder.BuildNew(req.RawRequest()); err != nil {
		return errorResponse(err)
	}
	return Response{StatusCode: 200, Payload: map[string]interface{}{"result": "ok"}}
}

func (d *Dispatcher) handlePost(ctx context.Context, req *reqio.Request) Response {
	if err := req.Validate(); err != nil {
		return errorResponse(err)
	}
	root, err := d.Authority.GetRoot(req)
	if err != nil {
		return errorResponse(err)
	}
	result, err := root.Call(ctx, req, d.Store)
	if err != nil {
		return errorResponse(err)
	}
	return Response{StatusCode: 200, Payload: result}
}

func (d *Dispatcher) handleGet(req *reqio.Request) Response {
	if err := req.Validate(); err != nil {
		return errorResponse(err)
	}
	root, err := d.Authority.GetRoot(req)
	if err != nil {
		return errorResponse(err)
	}

	segments := strings.Split(req.EntityPath(), ".")
	nodes, err := root.GetChildrenOf(segments, req.Recursive())
	if err != nil {
		return errorResponse(err)
	}

	fields := req.Fields()

	results := make(map[string]interface{}, len(nodes))
	for _, n := range nodes {
		data, err := n.QueryData(d.Store)
		if err != nil {
			if brokererr.KindOf(err) == brokererr.InvalidRequest {
				results[n.Name] = err.Error()
				continue
			}
			return errorResponse(err)
		}
		payload := queryResultPayload(data)
		if len(fields) > 0 {
			payload = projectFields(payload, fields)
		}
		results[n.Name] = payload
	}
	return Response{StatusCode: 200, Payload: results}
}

func queryResultPayload(data entity.QueryResult) map[string]interface{} {
	return map[string]interface{}{
		"info":     data.Info,
		"expended": data.Expended,
	}
}

// projectFields narrows a query result down to the caller's requested
// dotted paths, resolved via pathutil.LookupFast's jsonpath-backed
// lookup rather than Lookup's segment-by-segment error reporting: a
// field the client asked for but that doesn't resolve is simply
// omitted, not a request error.
func projectFields(payload map[string]interface{}, fields []string) map[string]interface{} {
	projected := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		val, err := pathutil.LookupFast(payload, field)
		if err != nil {
			continue
		}
		projected[field] = val
	}
	return projected
}

func errorResponse(err error) Response {
	return Response{
		StatusCode: brokererr.StatusOf(err),
		Payload:    map[string]interface{}{"error": err.Error()},
	}
}
