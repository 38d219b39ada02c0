package entity

import (
	"encoding/json"
	"os"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/policy"
)

// Definition is the persisted, declarative shape of one entity (and,
// recursively, its children) as written to entity_definition.json
// (§3 Organization definition).
type Definition struct {
	EntityName string            `json:"Entity_Name"`
	Type       string            `json:"Type"`
	Policy     interface{}       `json:"Policy,omitempty"`
	Available  *int              `json:"Available,omitempty"`
	StartKey   string            `json:"StartKey,omitempty"`
	EndKey     string            `json:"EndKey,omitempty"`
	Collect    map[string]string `json:"Collect,omitempty"`
	Children   []Definition      `json:"Children,omitempty"`
}

// LoadDefinition reads and decodes an org's entity_definition.json.
func LoadDefinition(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, brokererr.Wrap(brokererr.RouteDoesNotExist, err, "could not read entity definition at %s", path)
	}
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return Definition{}, brokererr.Wrap(brokererr.MalformedEntity, err, "malformed entity definition at %s", path)
	}
	return def, nil
}

// Hydrate builds a runtime Node tree from a Definition, resolving every
// node's policy through factory (§3 Entity (runtime) lifecycle).
func Hydrate(def Definition, org string, factory *policy.Factory) (*Node, error) {
	pol, err := factory.FromAny(def.Policy, org)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.MalformedEntity, err, "could not resolve policy for entity %s", def.EntityName)
	}

	children := make(map[string]*Node, len(def.Children))
	for _, childDef := range def.Children {
		child, err := Hydrate(childDef, org, factory)
		if err != nil {
			return nil, err
		}
		children[child.Name] = child
	}

	return &Node{
		Name:     def.EntityName,
		Org:      org,
		Kind:     Kind(def.Type),
		Policy:   pol,
		Children: children,
	}, nil
}
