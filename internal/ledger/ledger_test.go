package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/resource-broker/internal/distlock"
)

func TestTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources_info.csv")

	header := []string{"available", "header::quantity"}
	rows := [][]string{{"100", "data.quantity"}}
	require.NoError(t, WriteTable(path, header, rows))

	table, err := ReadTable(path)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "100", table.Row(0)["available"])
}

func TestAppendRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources_expended.csv")
	header := []string{"quantity", "name"}
	require.NoError(t, WriteTable(path, header, nil))

	require.NoError(t, AppendRow(path, header, map[string]string{"quantity": "1", "name": "alice"}))

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
}

func TestLockKeyAcquireAndRelease(t *testing.T) {
	locker := distlock.NewLocal()
	release, err := locker.Lock(nil, LockKey("org", "entity"))
	require.NoError(t, err)
	release()
}
