package reporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/R3E-Network/resource-broker/internal/distlock"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/logging"
)

func TestReportOnceSkipsMissingOrganizations(t *testing.T) {
	dataRoot := t.TempDir()
	store := ledger.NewStore(dataRoot, distlock.NewLocal())
	r := New(dataRoot, store, logging.New("test", "error", "text"))

	// No organizations exist yet; reportOnce must not panic or error out.
	r.reportOnce()
}

func TestReportOnceLogsTicketedEntity(t *testing.T) {
	dataRoot := t.TempDir()
	store := ledger.NewStore(dataRoot, distlock.NewLocal())
	r := New(dataRoot, store, logging.New("test", "error", "text"))

	orgDir := filepath.Join(dataRoot, "organization_uofc")
	if err := os.MkdirAll(orgDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	def := `{"Entity_Name":"uofc","Type":"Routing","Children":[{"Entity_Name":"eventa","Type":"Ticketed","Available":2,"Collect":{"quantity":"data.quantity"}}]}`
	if err := os.WriteFile(filepath.Join(orgDir, "entity_definition.json"), []byte(def), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ledger.WriteTable(store.InfoPath("uofc", "eventa"), []string{"available"}, [][]string{{"2"}}); err != nil {
		t.Fatalf("WriteTable info: %v", err)
	}
	if err := ledger.WriteTable(store.ExpendedPath("uofc", "eventa"), []string{"quantity"}, nil); err != nil {
		t.Fatalf("WriteTable expended: %v", err)
	}

	r.reportOnce()
}

func TestStartAndStop(t *testing.T) {
	dataRoot := t.TempDir()
	store := ledger.NewStore(dataRoot, distlock.NewLocal())
	r := New(dataRoot, store, logging.New("test", "error", "text"))

	if err := r.Start("@every 1h"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
}
