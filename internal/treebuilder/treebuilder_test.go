package treebuilder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/ledger"
)

func decodeRaw(t *testing.T, jsonBody string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonBody), &raw))
	return raw
}

func TestBuildNewSuccess(t *testing.T) {
	dataRoot := t.TempDir()
	builder := New(dataRoot)

	raw := decodeRaw(t, `{
		"OrganizationName": "uofc",
		"Entities": [
			{
				"Entity_Name": "eventa",
				"Type": "Ticketed",
				"Available": 100,
				"Collect": {"quantity": "data.quantity"}
			}
		]
	}`)

	require.NoError(t, builder.BuildNew(raw))

	orgDir := filepath.Join(dataRoot, "organization_uofc")
	_, err := os.Stat(filepath.Join(orgDir, "entity_definition.json"))
	assert.NoError(t, err)

	store := ledger.NewStore(dataRoot, nil)
	_, err = os.Stat(store.InfoPath("uofc", "eventa"))
	assert.NoError(t, err)
	_, err = os.Stat(store.ExpendedPath("uofc", "eventa"))
	assert.NoError(t, err)
}

func TestBuildNewRejectsDuplicate(t *testing.T) {
	dataRoot := t.TempDir()
	builder := New(dataRoot)
	raw := decodeRaw(t, `{"OrganizationName": "uofc", "Entities": []}`)

	require.NoError(t, builder.BuildNew(raw))
	err := builder.BuildNew(raw)
	assert.Equal(t, brokererr.AssociationAlreadyExists, brokererr.KindOf(err))
}

func TestBuildNewRollsBackOnMalformedEntity(t *testing.T) {
	dataRoot := t.TempDir()
	builder := New(dataRoot)
	raw := decodeRaw(t, `{
		"OrganizationName": "broken",
		"Entities": [
			{"Entity_Name": "eventa", "Type": "Ticketed"}
		]
	}`)

	err := builder.BuildNew(raw)
	assert.Equal(t, brokererr.MalformedEntity, brokererr.KindOf(err))

	_, statErr := os.Stat(filepath.Join(dataRoot, "organization_broken"))
	assert.True(t, os.IsNotExist(statErr))
}
