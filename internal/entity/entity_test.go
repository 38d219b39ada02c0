package entity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/distlock"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/policy"
	"github.com/R3E-Network/resource-broker/internal/reqio"
)

func buildTree(t *testing.T) (*Node, *ledger.Store) {
	t.Helper()
	dataRoot := t.TempDir()
	store := ledger.NewStore(dataRoot, distlock.NewLocal())
	orgDir := filepath.Join(dataRoot, "organization_uofc")
	if err := os.MkdirAll(orgDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := ledger.WriteTable(store.InfoPath("uofc", "eventa"),
		[]string{"available", "header::quantity"},
		[][]string{{"5", "data.quantity"}}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := ledger.WriteTable(store.ExpendedPath("uofc", "eventa"), []string{"quantity"}, nil); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	factory := policy.NewFactory(dataRoot)
	def := Definition{
		EntityName: "uofc",
		Type:       "Routing",
		Policy:     nil,
		Children: []Definition{
			{
				EntityName: "eventa",
				Type:       "Ticketed",
				Policy:     nil,
				Collect:    map[string]string{"quantity": "data.quantity"},
			},
		},
	}
	root, err := Hydrate(def, "uofc", factory)
	if err != nil {
		t.Fatalf("Hydrate() error: %v", err)
	}
	return root, store
}

func postRequest(t *testing.T, entityPath, dataJSON string) *reqio.Request {
	t.Helper()
	body := `{"entity":"` + entityPath + `","data":` + dataJSON + `}`
	req, err := reqio.Parse([]byte("POST / HTTP/1.1\r\n\r\n" + body))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if _, err := req.NextRoute(); err != nil {
		t.Fatalf("priming NextRoute() error: %v", err)
	}
	return req
}

func TestCallRoutesToTicketedLeaf(t *testing.T) {
	root, store := buildTree(t)
	req := postRequest(t, "uofc.eventa", `{"quantity":1}`)

	result, err := root.Call(context.Background(), req, store)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if result["result"] != "ok" {
		t.Errorf("Call() = %v, want result ok", result)
	}
}

func TestCallRouteDoesNotExist(t *testing.T) {
	root, store := buildTree(t)
	req := postRequest(t, "uofc.missing", `{}`)

	_, err := root.Call(context.Background(), req, store)
	if brokererr.KindOf(err) != brokererr.RouteDoesNotExist {
		t.Errorf("expected RouteDoesNotExist, got %v", err)
	}
}

func TestHandleLeafRoutingRejects(t *testing.T) {
	root, store := buildTree(t)
	req := postRequest(t, "uofc", `{}`)

	_, err := root.Call(context.Background(), req, store)
	if brokererr.KindOf(err) != brokererr.RouteDoesNotExist {
		t.Errorf("expected RouteDoesNotExist for routing leaf, got %v", err)
	}
}

func TestGetChildrenOfRecursive(t *testing.T) {
	root, _ := buildTree(t)

	nodes, err := root.GetChildrenOf([]string{"uofc"}, true)
	if err != nil {
		t.Fatalf("GetChildrenOf() error: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes (self + child), got %d", len(nodes))
	}
}

func TestQueryDataOnRoutingFails(t *testing.T) {
	root, store := buildTree(t)
	_, err := root.QueryData(store)
	if brokererr.KindOf(err) != brokererr.InvalidRequest {
		t.Errorf("expected InvalidRequest, got %v", err)
	}
}
