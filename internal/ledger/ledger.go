// Package ledger implements the per-(org,entity) CSV-backed resource
// tables (spec §3, §6 Persisted layout), grounded on
// original_source/backend/database_endpoints/data_management.go and
// tickets_data_management.go's pandas-driven read/modify/write cycle,
// translated to encoding/csv since no example repo in the retrieval
// pack imports a third-party CSV or dataframe library.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/distlock"
)

// Store resolves ledger file paths under a data root and serializes
// writers per (org, entity) via a Locker (§5 Shared-resource
// discipline).
type Store struct {
	DataRoot string
	Locker   distlock.Locker
}

// NewStore builds a Store rooted at dataRoot, using locker for
// per-ledger mutual exclusion.
func NewStore(dataRoot string, locker distlock.Locker) *Store {
	return &Store{DataRoot: dataRoot, Locker: locker}
}

// OrgDir is the organization's root directory.
func (s *Store) OrgDir(org string) string {
	return filepath.Join(s.DataRoot, "organization_"+org)
}

// InfoPath is the single-row metadata CSV for (org, entity).
func (s *Store) InfoPath(org, entity string) string {
	return filepath.Join(s.OrgDir(org), entity+"_resources_info.csv")
}

// ExpendedPath is the append-only ledger CSV for (org, entity).
func (s *Store) ExpendedPath(org, entity string) string {
	return filepath.Join(s.OrgDir(org), entity+"_resources_expended.csv")
}

// LockKey identifies the (org, entity) ledger for Locker purposes.
func LockKey(org, entity string) string {
	return fmt.Sprintf("%s/%s", org, entity)
}

// Table is a header plus zero or more rows read from a CSV file.
type Table struct {
	Header []string
	Rows   [][]string
}

// Row returns row i as a header->value map.
func (t Table) Row(i int) map[string]string {
	row := make(map[string]string, len(t.Header))
	for j, col := range t.Header {
		if j < len(t.Rows[i]) {
			row[col] = t.Rows[i][j]
		}
	}
	return row
}

// ReadTable parses a CSV file in full.
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, brokererr.Wrap(brokererr.DatabaseWrite, err, "could not open ledger file %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, brokererr.Wrap(brokererr.DatabaseWrite, err, "could not parse ledger file %s", path)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	return Table{Header: records[0], Rows: records[1:]}, nil
}

// WriteTable overwrites a CSV file with header and rows.
func WriteTable(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not create ledger file %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not write ledger header %s", path)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not write ledger row %s", path)
		}
	}
	w.Flush()
	return w.Error()
}

// AppendRow appends a single row (in header order) to an existing CSV
// file.
func AppendRow(path string, header []string, row map[string]string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not open ledger file for append %s", path)
	}
	defer f.Close()

	ordered := make([]string, len(header))
	for i, col := range header {
		ordered[i] = row[col]
	}
	w := csv.NewWriter(f)
	if err := w.Write(ordered); err != nil {
		return brokererr.Wrap(brokererr.DatabaseWrite, err, "could not append ledger row %s", path)
	}
	w.Flush()
	return w.Error()
}
