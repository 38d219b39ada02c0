// Package treebuilder materializes an entity tree from a declarative
// organization definition submitted via PUT (spec §4.7), grounded on
// original_source/backend/database_endpoints/entity_creation.go's
// EntityEntryDataManagement.build_new.
package treebuilder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/entity"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/policy"
)

// Builder creates new organizations under a data root.
type Builder struct {
	DataRoot string
	Factory  *policy.Factory
}

// New builds a Builder rooted at dataRoot.
func New(dataRoot string) *Builder {
	return &Builder{DataRoot: dataRoot, Factory: policy.NewFactory(dataRoot)}
}

// submittedEntity is the PUT request's per-entity declaration (§3
// Organization definition); it mirrors entity.Definition but keeps
// JSON-dialect policy values as raw interface{} until validated.
type submittedEntity struct {
	EntityName string            `json:"Entity_Name"`
	Type       string            `json:"Type"`
	Policy     interface{}       `json:"Policy,omitempty"`
	Available  *int              `json:"Available,omitempty"`
	StartKey   string            `json:"StartKey,omitempty"`
	EndKey     string            `json:"EndKey,omitempty"`
	Collect    map[string]string `json:"Collect,omitempty"`
	Children   []submittedEntity `json:"Children,omitempty"`
}

// CreateRequest is the full PUT body (§6 PUT create-org).
type CreateRequest struct {
	OrganizationName string                     `json:"OrganizationName"`
	Policies         map[string]interface{}     `json:"Policies,omitempty"`
	Policy           interface{}                `json:"Policy,omitempty"`
	Entities         []submittedEntity          `json:"Entities"`
}

// BuildNew validates and persists a brand-new organization (§4.7). Any
// failure after the org directory is allocated rolls back by removing
// it.
func (b *Builder) BuildNew(raw map[string]interface{}) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return brokererr.Wrap(brokererr.MalformedEntity, err, "could not re-encode organization definition")
	}
	var req CreateRequest
	if err := json.Unmarshal(encoded, &req); err != nil {
		return brokererr.Wrap(brokererr.MalformedEntity, err, "malformed organization definition")
	}
	if req.OrganizationName == "" {
		return brokererr.New(brokererr.MalformedEntity, "OrganizationName is required")
	}

	orgDir := filepath.Join(b.DataRoot, "organization_"+req.OrganizationName)
	if _, err := os.Stat(orgDir); err == nil {
		return brokererr.New(brokererr.AssociationAlreadyExists, "organization %s already exists", req.OrganizationName)
	}
	if err := os.MkdirAll(orgDir, 0755); err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not allocate organization directory for %s", req.OrganizationName)
	}

	if err := b.buildLocked(orgDir, req); err != nil {
		os.RemoveAll(orgDir)
		return err
	}
	return nil
}

func (b *Builder) buildLocked(orgDir string, req CreateRequest) error {
	if len(req.Policies) > 0 {
		policiesDir := filepath.Join(orgDir, "policies")
		if err := os.MkdirAll(policiesDir, 0755); err != nil {
			return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not create policies directory")
		}
		for name, def := range req.Policies {
			if _, err := b.Factory.FromAny(def, req.OrganizationName); err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(def, "", "  ")
			if err != nil {
				return brokererr.Wrap(brokererr.MalformedEntity, err, "could not encode policy %q", name)
			}
			path := filepath.Join(policiesDir, name+".json")
			if err := os.WriteFile(path, encoded, 0644); err != nil {
				return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not persist policy %q", name)
			}
		}
	}

	rootPolicy := req.Policy
	if rootPolicy == nil {
		rootPolicy = "FullApproval"
	}
	if _, err := b.Factory.FromAny(rootPolicy, req.OrganizationName); err != nil {
		return err
	}

	for _, child := range req.Entities {
		if err := validateSubmittedEntity(child, req.OrganizationName, b.Factory); err != nil {
			return err
		}
	}

	rootDef := entity.Definition{
		EntityName: req.OrganizationName,
		Type:       "Routing",
		Policy:     rootPolicy,
	}
	for _, child := range req.Entities {
		childDef, err := buildAndPersist(child, req.OrganizationName, b.DataRoot)
		if err != nil {
			return err
		}
		rootDef.Children = append(rootDef.Children, childDef)
	}

	encoded, err := json.MarshalIndent(rootDef, "", "  ")
	if err != nil {
		return brokererr.Wrap(brokererr.MalformedEntity, err, "could not encode entity definition")
	}
	if err := os.WriteFile(filepath.Join(orgDir, "entity_definition.json"), encoded, 0644); err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not persist entity definition")
	}
	return nil
}

// validateSubmittedEntity recursively checks required fields per type
// and that every declared policy resolves (§4.7 step 5).
func validateSubmittedEntity(def submittedEntity, org string, factory *policy.Factory) error {
	if def.EntityName == "" {
		return brokererr.New(brokererr.MalformedEntity, "Entity_Name must be defined in your entities")
	}
	switch def.Type {
	case "Routing", "Ticketed", "Slotted":
	default:
		return brokererr.New(brokererr.MalformedEntity, "Type of entity must be Ticketed, Routing, or Slotted")
	}
	if (def.Type == "Slotted" || def.Type == "Ticketed") && def.Collect == nil {
		return brokererr.New(brokererr.MalformedEntity, "define what data is to be collected for your ticketed/slotted entities")
	}
	if def.Type == "Ticketed" && def.Available == nil {
		return brokererr.New(brokererr.MalformedEntity, "must define Available in ticketed entities")
	}
	if def.Type == "Slotted" && (def.StartKey == "" || def.EndKey == "") {
		return brokererr.New(brokererr.MalformedEntity, "must define StartKey and EndKey in slotted entities")
	}
	if def.Policy != nil {
		if _, err := factory.FromAny(def.Policy, org); err != nil {
			return err
		}
	}
	for _, child := range def.Children {
		if err := validateSubmittedEntity(child, org, factory); err != nil {
			return err
		}
	}
	return nil
}

// buildAndPersist recursively converts a submittedEntity into its
// normalized entity.Definition, writing the info/expended tables for
// every Ticketed/Slotted node along the way (§4.7 step 6).
func buildAndPersist(def submittedEntity, org, dataRoot string) (entity.Definition, error) {
	policyValue := def.Policy
	if policyValue == nil {
		policyValue = "FullApproval"
	}

	normalized := entity.Definition{
		EntityName: def.EntityName,
		Type:       def.Type,
		Policy:     policyValue,
		Available:  def.Available,
		StartKey:   def.StartKey,
		EndKey:     def.EndKey,
		Collect:    def.Collect,
	}

	if def.Collect != nil {
		if err := generateDataSheet(def, org, dataRoot); err != nil {
			return entity.Definition{}, err
		}
	}

	for _, child := range def.Children {
		childDef, err := buildAndPersist(child, org, dataRoot)
		if err != nil {
			return entity.Definition{}, err
		}
		normalized.Children = append(normalized.Children, childDef)
	}
	return normalized, nil
}

func generateDataSheet(def submittedEntity, org, dataRoot string) error {
	store := ledger.NewStore(dataRoot, nil)

	var header []string
	var row []string
	switch def.Type {
	case "Ticketed":
		header = append(header, "available")
		row = append(row, strconv.Itoa(*def.Available))
	case "Slotted":
		header = append(header, "start_key", "end_key", "strict")
		row = append(row, def.StartKey, def.EndKey, "1")
	}
	for key, path := range def.Collect {
		header = append(header, "header::"+key)
		row = append(row, path)
	}
	if err := ledger.WriteTable(store.InfoPath(org, def.EntityName), header, [][]string{row}); err != nil {
		return err
	}

	expendedHeader := make([]string, 0, len(def.Collect))
	for key := range def.Collect {
		expendedHeader = append(expendedHeader, key)
	}
	if def.Type == "Slotted" {
		expendedHeader = append(expendedHeader, lastSegment(def.StartKey), lastSegment(def.EndKey))
	}
	return ledger.WriteTable(store.ExpendedPath(org, def.EntityName), expendedHeader, nil)
}

func lastSegment(dottedPath string) string {
	for i := len(dottedPath) - 1; i >= 0; i-- {
		if dottedPath[i] == '.' {
			return dottedPath[i+1:]
		}
	}
	return dottedPath
}

