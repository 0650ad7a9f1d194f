package rowcodec_test

import (
	"testing"

	"github.com/charmful0x/schema-js/internal/rowcodec"
	"github.com/charmful0x/schema-js/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	doc := schema.Document{
		"_uid":    "11111111-1111-1111-1111-111111111111",
		"id":      "ABCD",
		"enabled": true,
		"count":   float64(42),
		"notes":   nil,
	}
	encoded, err := rowcodec.Encode(doc)
	require.NoError(t, err)

	decoded, err := rowcodec.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, doc, decoded)
}

func TestRoundTrip_EmptyDocument(t *testing.T) {
	encoded, err := rowcodec.Encode(schema.Document{})
	require.NoError(t, err)
	decoded, err := rowcodec.Decode(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestDocumentRow_FieldAccess(t *testing.T) {
	row := &rowcodec.DocumentRow{
		Table: "users",
		Doc:   schema.Document{"id": "1"},
	}
	require.Equal(t, "users", row.TableName())
	v, ok := row.Field("id")
	require.True(t, ok)
	require.Equal(t, "1", v)
	_, ok = row.Field("missing")
	require.False(t, ok)
}
