// Package reporter periodically logs per-entity ledger utilization. The
// original system exposes utilization only on-demand via GET (spec
// §4.9); this supplements that with an ambient push-based view an
// operator can watch without issuing requests, the kind of periodic
// job cmd/gateway/main.go wires with rate-limiter cleanup tickers
// elsewhere in the teacher repo. Scheduling is delegated to robfig/cron
// rather than hand-rolled, per the module's declared domain stack.
package reporter

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/resource-broker/internal/entity"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/logging"
)

// Reporter periodically scans every organization's entities and logs
// ticket/timeslot utilization.
type Reporter struct {
	DataRoot string
	Store    *ledger.Store
	Logger   *logging.Logger

	cron *cron.Cron
}

// New builds a Reporter rooted at dataRoot.
func New(dataRoot string, store *ledger.Store, logger *logging.Logger) *Reporter {
	return &Reporter{DataRoot: dataRoot, Store: store, Logger: logger, cron: cron.New()}
}

// Start schedules a utilization report on the given cron spec (e.g.
// "@every 5m") and begins running it in the background.
func (r *Reporter) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, r.reportOnce)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

// reportOnce scans every organization directory and logs utilization for
// each Ticketed/Slotted entity it finds.
func (r *Reporter) reportOnce() {
	orgDirs, err := filepath.Glob(filepath.Join(r.DataRoot, "organization_*"))
	if err != nil {
		r.Logger.WithError(err).Warn("reporter: could not scan data root")
		return
	}

	for _, orgDir := range orgDirs {
		org := strings.TrimPrefix(filepath.Base(orgDir), "organization_")
		defPath := filepath.Join(orgDir, "entity_definition.json")
		def, err := entity.LoadDefinition(defPath)
		if err != nil {
			continue
		}
		r.reportNode(org, def)
	}
}

func (r *Reporter) reportNode(org string, def entity.Definition) {
	if def.Type != "Routing" {
		r.reportLeaf(org, def)
	}
	for _, child := range def.Children {
		r.reportNode(org, child)
	}
}

func (r *Reporter) reportLeaf(org string, def entity.Definition) {
	info, err := ledger.ReadTable(r.Store.InfoPath(org, def.EntityName))
	if err != nil {
		return
	}
	expended, err := ledger.ReadTable(r.Store.ExpendedPath(org, def.EntityName))
	if err != nil {
		return
	}

	fields := map[string]interface{}{
		"organization": org,
		"entity":       def.EntityName,
		"type":         def.Type,
		"expended":     len(expended.Rows),
	}
	if def.Type == "Ticketed" && len(info.Rows) > 0 {
		if available, convErr := strconv.Atoi(info.Row(0)["available"]); convErr == nil {
			fields["available"] = available
			fields["remaining"] = available - len(expended.Rows)
		}
	}
	encoded, _ := json.Marshal(fields)
	r.Logger.WithContext(context.Background()).WithField("utilization", string(encoded)).Info("ledger utilization")
}
