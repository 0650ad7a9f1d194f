package schema_test

import (
	"testing"

	"github.com/charmful0x/schema-js/internal/schema"
	"github.com/stretchr/testify/require"
)

func usersTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("users",
		[]schema.Column{
			{Name: "id", DataType: schema.TypeString, Required: true, PrimaryKey: true},
			{Name: "enabled", DataType: schema.TypeBoolean, Required: true},
			{Name: "nickname", DataType: schema.TypeString, Required: false},
		},
		[]schema.Index{
			{Name: "by_id", Members: []string{"id"}, Kind: schema.IndexHash},
		},
		"id",
	)
	require.NoError(t, err)
	return tbl
}

func TestValidate_MissingRequiredColumn(t *testing.T) {
	tbl := usersTable(t)
	err := schema.Validate(tbl, schema.Document{"id": "1"})
	var missing *schema.MissingColumnError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "enabled", missing.Column)
}

func TestValidate_ExpectedBoolean(t *testing.T) {
	tbl := usersTable(t)
	err := schema.Validate(tbl, schema.Document{"id": "1", "enabled": ""})
	var expected *schema.ExpectedBooleanError
	require.ErrorAs(t, err, &expected)
	require.Equal(t, "enabled", expected.Column)
}

func TestValidate_OptionalColumnMayBeAbsent(t *testing.T) {
	tbl := usersTable(t)
	err := schema.Validate(tbl, schema.Document{"id": "1", "enabled": true})
	require.NoError(t, err)
}

func TestValidate_ExtraFieldsPreserved(t *testing.T) {
	tbl := usersTable(t)
	doc := schema.Document{"id": "1", "enabled": true, "extra": "kept"}
	require.NoError(t, schema.Validate(tbl, doc))
	require.Equal(t, "kept", doc["extra"])
}

func TestNewTable_RejectsIndexOnUnknownColumn(t *testing.T) {
	_, err := schema.NewTable("t",
		[]schema.Column{{Name: "a", DataType: schema.TypeString}},
		[]schema.Index{{Name: "bad", Members: []string{"b"}, Kind: schema.IndexHash}},
		"",
	)
	require.Error(t, err)
}

func TestEffectivePrimaryKey_EmptyMeansUID(t *testing.T) {
	tbl, err := schema.NewTable("t", []schema.Column{{Name: "a", DataType: schema.TypeString}}, nil, "")
	require.NoError(t, err)
	require.Equal(t, "_uid", tbl.EffectivePrimaryKey("_uid"))
}
