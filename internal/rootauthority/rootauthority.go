// Package rootauthority locates an organization's root entity and
// hands off the first path hop to it (spec §2 control flow, §4.6),
// grounded on original_source/backend/routing/root_authority.go's
// glob-based organization lookup.
package rootauthority

import (
	"path/filepath"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/entity"
	"github.com/R3E-Network/resource-broker/internal/policy"
	"github.com/R3E-Network/resource-broker/internal/reqio"
)

// Authority resolves the organization root named by a request's first
// path fragment.
type Authority struct {
	DataRoot string
	Factory  *policy.Factory
}

// New builds an Authority rooted at dataRoot.
func New(dataRoot string) *Authority {
	return &Authority{DataRoot: dataRoot, Factory: policy.NewFactory(dataRoot)}
}

// GetRoot consumes the request's first path fragment (the organization
// name) and hydrates its entity tree, failing with RouteDoesNotExist if
// no such organization is registered (§4.6 get_root).
func (a *Authority) GetRoot(req *reqio.Request) (*entity.Node, error) {
	rootName, err := req.NextRoute()
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(a.DataRoot, "organization_*"))
	if err != nil {
		return nil, brokererr.Wrap(brokererr.RouteDoesNotExist, err, "could not scan data root %s", a.DataRoot)
	}

	found := false
	for _, m := range matches {
		if filepath.Base(m) == "organization_"+rootName {
			found = true
			break
		}
	}
	if !found {
		return nil, brokererr.New(brokererr.RouteDoesNotExist, "root %s does not exist", rootName)
	}

	defPath := filepath.Join(a.DataRoot, "organization_"+rootName, "entity_definition.json")
	def, err := entity.LoadDefinition(defPath)
	if err != nil {
		return nil, err
	}
	return entity.Hydrate(def, rootName, a.Factory)
}
