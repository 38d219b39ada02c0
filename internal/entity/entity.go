// Package entity implements the runtime entity tree (spec §4.6): typed
// nodes (Routing/Ticketed/Slotted), per-hop policy validation, leaf
// dispatch to the allocation engine, and recursive sub-tree queries.
// Grounded on
// original_source/backend/routing/entity/entities.go's Entity/__call__
// dispatch, extended past its stub handle_bottom_of_tree into real
// Ticketed/Slotted leaf handling (which in the original lives in
// backend/database_endpoints).
package entity

import (
	"context"

	"github.com/R3E-Network/resource-broker/internal/alloc"
	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/logging"
	"github.com/R3E-Network/resource-broker/internal/policy"
	"github.com/R3E-Network/resource-broker/internal/reqio"
)

// Kind is the tagged variant of an entity node (§3 Entity (runtime)).
type Kind string

const (
	Routing Kind = "Routing"
	Ticketed Kind = "Ticketed"
	Slotted  Kind = "Slotted"
)

// Node is one entity in the runtime tree, hydrated from the org's
// stored definition at request time.
type Node struct {
	Name     string
	Org      string
	Kind     Kind
	Policy   policy.Policy
	Children map[string]*Node
}

// QueryResult is the (info, expended) snapshot returned for a
// Ticketed/Slotted leaf (§4.6 query_data).
type QueryResult struct {
	Info     map[string]string
	Expended []map[string]string
}

// Call walks the tree for a single request: validate this node's
// policy, then either dispatch to the leaf handler (if the request path
// is exhausted) or recurse into the named child (§4.6 call).
func (n *Node) Call(ctx context.Context, req *reqio.Request, store *ledger.Store) (map[string]interface{}, error) {
	if n.Policy != nil && !n.Policy.Validate(req) {
		err := brokererr.New(brokererr.Rejected, "policy rejected request at %s", n.Name)
		logging.Default().LogRejection(ctx, n.Name, err.Error())
		return nil, err
	}

	next, err := req.NextRoute()
	if err != nil {
		if brokererr.KindOf(err) == brokererr.RouteDoesNotExist {
			return n.HandleLeaf(ctx, req, store)
		}
		return nil, err
	}

	child, ok := n.Children[next]
	if !ok {
		return nil, brokererr.New(brokererr.RouteDoesNotExist, "no route named %q in the children of %s", next, n.Name)
	}
	return child.Call(ctx, req, store)
}

// HandleLeaf dispatches a request that has exhausted its path at this
// node (§4.6 handle_leaf).
func (n *Node) HandleLeaf(ctx context.Context, req *reqio.Request, store *ledger.Store) (map[string]interface{}, error) {
	switch n.Kind {
	case Routing:
		return nil, brokererr.New(brokererr.RouteDoesNotExist, "%s is a routing entity and should not be a leaf", n.Name)
	case Ticketed:
		engine := alloc.NewEngine(store)
		if err := engine.RegisterTicket(ctx, n.Org, n.Name, req.RawRequest()); err != nil {
			return nil, err
		}
		logging.Default().LogAllocation(ctx, n.Org, n.Name, string(n.Kind))
		return map[string]interface{}{"result": "ok"}, nil
	case Slotted:
		engine := alloc.NewEngine(store)
		if err := engine.RegisterSlot(ctx, n.Org, n.Name, req.RawRequest()); err != nil {
			return nil, err
		}
		logging.Default().LogAllocation(ctx, n.Org, n.Name, string(n.Kind))
		return map[string]interface{}{"result": "ok"}, nil
	default:
		return nil, brokererr.New(brokererr.MalformedEntity, "entity %s has unknown kind %q", n.Name, n.Kind)
	}
}

// GetChildrenOf resolves the node named by the head of path (dotted,
// relative to this node) and returns it, plus every descendant if
// recursive is set (§4.6 get_children_of).
func (n *Node) GetChildrenOf(path []string, recursive bool) ([]*Node, error) {
	if len(path) == 0 || path[0] != n.Name {
		return nil, brokererr.New(brokererr.RouteDoesNotExist, "no route named %q in the children of %s", headOrEmpty(path), n.Name)
	}
	if len(path) == 1 {
		result := []*Node{n}
		if recursive {
			result = append(result, n.allDescendants()...)
		}
		return result, nil
	}
	child, ok := n.Children[path[1]]
	if !ok {
		return nil, brokererr.New(brokererr.RouteDoesNotExist, "no route named %q in the children of %s", path[1], n.Name)
	}
	return child.GetChildrenOf(path[1:], recursive)
}

func headOrEmpty(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[0]
}

func (n *Node) allDescendants() []*Node {
	var out []*Node
	for _, child := range n.Children {
		out = append(out, child)
		out = append(out, child.allDescendants()...)
	}
	return out
}

// QueryData returns the (info, expended) snapshot for a Ticketed/Slotted
// node, or InvalidRequest for a Routing node (§4.6 query_data).
func (n *Node) QueryData(store *ledger.Store) (QueryResult, error) {
	if n.Kind == Routing {
		return QueryResult{}, brokererr.New(brokererr.InvalidRequest, "%s is a routing entity and carries no resource data", n.Name)
	}

	info, err := ledger.ReadTable(store.InfoPath(n.Org, n.Name))
	if err != nil {
		return QueryResult{}, err
	}
	expendedTable, err := ledger.ReadTable(store.ExpendedPath(n.Org, n.Name))
	if err != nil {
		return QueryResult{}, err
	}

	var infoRow map[string]string
	if len(info.Rows) > 0 {
		infoRow = info.Row(0)
	}
	expended := make([]map[string]string, len(expendedTable.Rows))
	for i := range expendedTable.Rows {
		expended[i] = expendedTable.Row(i)
	}
	return QueryResult{Info: infoRow, Expended: expended}, nil
}
