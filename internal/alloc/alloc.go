// Package alloc implements the Ticketed and Slotted allocation engine
// (spec §4.8): capacity counting, timeslot overlap checking, and the
// header-mapping indirection between storage columns and request paths.
// Grounded on
// original_source/backend/database_endpoints/data_management.go
// (TicketDataManagement/TimeslotDataManagement.register) and
// tickets_data_management.go.
package alloc

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/ledger"
	"github.com/R3E-Network/resource-broker/internal/pathutil"
)

// iso8601Pattern is copied verbatim from
// original_source/backend/utils/utils.go's validate_iso8601.
var iso8601Pattern = regexp.MustCompile(`^(-?(?:[1-9][0-9]*)?[0-9]{4})-(1[0-2]|0[1-9])-(3[01]|0[1-9]|[12][0-9])T(2[0-3]|[01][0-9]):([0-5][0-9]):([0-5][0-9])(\.[0-9]+)?(Z|[+-](?:2[0-3]|[01][0-9]):[0-5][0-9])?$`)

// ValidateISO8601 reports whether s is a well-formed ISO-8601 timestamp.
func ValidateISO8601(s string) bool {
	return iso8601Pattern.MatchString(s)
}

// Engine performs Ticketed/Slotted registration against a ledger Store.
type Engine struct {
	Store *ledger.Store
}

// NewEngine builds an allocation Engine atop store.
func NewEngine(store *ledger.Store) *Engine {
	return &Engine{Store: store}
}

// headerMapping extracts the header::<col> -> dotted-path mapping from
// an info table's first row.
func headerMapping(info ledger.Table) map[string]string {
	if len(info.Rows) == 0 {
		return map[string]string{}
	}
	row := info.Row(0)
	mapping := make(map[string]string)
	for _, col := range info.Header {
		if strings.HasPrefix(col, "header::") {
			mapping[col[len("header::"):]] = row[col]
		}
	}
	return mapping
}

// checkHeadersResolve requires every mapped dotted path to resolve in
// data, failing DatabaseWrite otherwise (§4.8 step 1).
func checkHeadersResolve(mapping map[string]string, data map[string]interface{}) error {
	for header, path := range mapping {
		if _, err := pathutil.Lookup(data, path); err != nil {
			return brokererr.New(brokererr.DatabaseWrite, "tracking header %q at path %q but it is not present in request data", header, path)
		}
	}
	return nil
}

func collectRow(mapping map[string]string, data map[string]interface{}) (map[string]string, error) {
	row := make(map[string]string, len(mapping))
	for header, path := range mapping {
		val, err := pathutil.Lookup(data, path)
		if err != nil {
			return nil, brokererr.Wrap(brokererr.DatabaseWrite, err, "could not resolve header %q", header)
		}
		row[header] = fmt.Sprintf("%v", val)
	}
	return row, nil
}

// RegisterTicket implements Ticketed.register (§4.8).
func (e *Engine) RegisterTicket(ctx context.Context, org, entity string, data map[string]interface{}) (err error) {
	defer func() { observeOutcome("ticket", err) }()

	release, err := e.Store.Locker.Lock(ctx, ledger.LockKey(org, entity))
	if err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not acquire ledger lock for %s/%s", org, entity)
	}
	defer release()

	info, err := ledger.ReadTable(e.Store.InfoPath(org, entity))
	if err != nil {
		return err
	}
	expended, err := ledger.ReadTable(e.Store.ExpendedPath(org, entity))
	if err != nil {
		return err
	}

	mapping := headerMapping(info)
	if err := checkHeadersResolve(mapping, data); err != nil {
		return err
	}

	available, err := strconv.Atoi(info.Row(0)["available"])
	if err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "malformed available column for %s/%s", org, entity)
	}
	remaining := available - len(expended.Rows)

	quantityPath, ok := mapping["quantity"]
	if !ok {
		return brokererr.New(brokererr.DatabaseWrite, "ticketed entity %s/%s has no quantity header mapping", org, entity)
	}
	rawQuantity, err := pathutil.Lookup(data, quantityPath)
	if err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not resolve quantity at %q", quantityPath)
	}
	quantity, err := toInt(rawQuantity)
	if err != nil {
		return brokererr.New(brokererr.InvalidRequest, "quantity %v is not an integer", rawQuantity)
	}

	if quantity <= 0 {
		return brokererr.New(brokererr.InvalidRequest, "you must request >= 1 tickets for a ticketed resource")
	}
	if quantity > remaining {
		return brokererr.New(brokererr.NoTicketsAvailable, "requested %d tickets but only %d are available", quantity, remaining)
	}

	row, err := collectRow(mapping, data)
	if err != nil {
		return err
	}
	for i := 0; i < quantity; i++ {
		if err := ledger.AppendRow(e.Store.ExpendedPath(org, entity), expended.Header, row); err != nil {
			return err
		}
	}
	remainingCapacity.WithLabelValues(org, entity).Set(float64(remaining - quantity))
	return nil
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// RegisterSlot implements Slotted.register (§4.8 analogue for
// timeslots): overlap checking under strict lexicographic ISO-8601
// string comparison (never native time comparison — this is
// intentional, spec §9).
func (e *Engine) RegisterSlot(ctx context.Context, org, entity string, data map[string]interface{}) (err error) {
	defer func() { observeOutcome("slot", err) }()

	release, err := e.Store.Locker.Lock(ctx, ledger.LockKey(org, entity))
	if err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not acquire ledger lock for %s/%s", org, entity)
	}
	defer release()

	info, err := ledger.ReadTable(e.Store.InfoPath(org, entity))
	if err != nil {
		return err
	}
	expended, err := ledger.ReadTable(e.Store.ExpendedPath(org, entity))
	if err != nil {
		return err
	}

	mapping := headerMapping(info)
	if err := checkHeadersResolve(mapping, data); err != nil {
		return err
	}

	infoRow := info.Row(0)
	startKeyPath := infoRow["start_key"]
	endKeyPath := infoRow["end_key"]

	rawStart, startErr := pathutil.Lookup(data, startKeyPath)
	rawEnd, endErr := pathutil.Lookup(data, endKeyPath)
	if startErr != nil || endErr != nil {
		return brokererr.New(brokererr.DatabaseWrite, "keyword argument for start time or end time is missing")
	}
	startTime, startOK := rawStart.(string)
	endTime, endOK := rawEnd.(string)
	if !startOK || !endOK || !ValidateISO8601(startTime) || !ValidateISO8601(endTime) {
		return brokererr.New(brokererr.DatabaseWrite, "invalid timeslot format: expected ISO 8601 format")
	}

	if startTime >= endTime {
		return brokererr.New(brokererr.InvalidTimeslot, "start time %s is greater than or equal to end time %s", startTime, endTime)
	}

	startCol := lastSegment(startKeyPath)
	endCol := lastSegment(endKeyPath)
	strict := infoRow["strict"] == "1" || strings.EqualFold(infoRow["strict"], "true")

	if strict {
		overlaps := 0
		startIdx := indexOf(expended.Header, startCol)
		endIdx := indexOf(expended.Header, endCol)
		if startIdx >= 0 && endIdx >= 0 {
			for _, row := range expended.Rows {
				existingStart, existingEnd := row[startIdx], row[endIdx]
				if overlapsInterval(existingStart, existingEnd, startTime, endTime) {
					overlaps++
				}
			}
		}
		if overlaps > 0 {
			return brokererr.New(brokererr.OverlappingTimeslot, "requested slot overlaps with %d existing timeslots", overlaps)
		}
	}

	row, err := collectRow(mapping, data)
	if err != nil {
		return err
	}
	row[startCol] = startTime
	row[endCol] = endTime

	header := expended.Header
	if indexOf(header, startCol) < 0 {
		header = append(append([]string{}, header...), startCol, endCol)
	}
	return ledger.AppendRow(e.Store.ExpendedPath(org, entity), header, row)
}

// overlapsInterval reports whether [existingStart, existingEnd] overlaps
// [newStart, newEnd] under the three conditions from the original
// source: the new start falls inside the existing slot, the new end
// falls inside the existing slot, or the new slot fully surrounds the
// existing one. All comparisons are lexicographic string comparisons on
// ISO-8601 text, never numeric/time parsing (spec §9).
func overlapsInterval(existingStart, existingEnd, newStart, newEnd string) bool {
	startInMiddle := existingStart <= newStart && existingEnd >= newStart
	endInMiddle := existingStart <= newEnd && existingEnd >= newEnd
	surrounds := existingStart >= newStart && existingEnd <= newEnd
	return startInMiddle || endInMiddle || surrounds
}

func lastSegment(dottedPath string) string {
	parts := strings.Split(dottedPath, ".")
	return parts[len(parts)-1]
}

func indexOf(slice []string, val string) int {
	for i, s := range slice {
		if s == val {
			return i
		}
	}
	return -1
}
