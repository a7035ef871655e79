package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "next_hop", NormalizeID("next-hop"))
	assert.Equal(t, "mtu", NormalizeID("mtu"))
}

func TestVariant(t *testing.T) {
	assert.Equal(t, VariantCompact, (&Node{Kind: Table, KeyCType: true, ValueCType: true}).Variant())
	assert.Equal(t, VariantString, (&Node{Kind: Table, StringKey: "name"}).Variant())
	assert.Equal(t, VariantKeyed, (&Node{Kind: Table, KeyCType: true}).Variant())
	assert.Equal(t, VariantGeneric, (&Node{Kind: Table}).Variant())
}

func testTable() *Node {
	return &Node{
		Name: "routes",
		Kind: Table,
		Keys: []string{"addr"},
		Entry: &Node{
			Kind: Struct,
			Fields: []*Node{
				{Name: "addr", Kind: Scalar, Type: Uint64},
				{Name: "next-hop", Kind: Scalar, Type: Uint64},
			},
		},
	}
}

func TestFieldLookup(t *testing.T) {
	tbl := testTable()
	assert.NotNil(t, tbl.Field("addr"))
	// both spellings resolve to the same field
	assert.Equal(t, tbl.Field("next-hop"), tbl.Field("next_hop"))
	assert.Nil(t, tbl.Field("nope"))
}

func TestKeyFields(t *testing.T) {
	tbl := testTable()
	keys, err := tbl.KeyFields()
	assert.NoError(t, err)
	assert.Len(t, keys, 1)
	assert.Equal(t, "addr", keys[0].Name)

	vals := tbl.ValueFields()
	assert.Len(t, vals, 1)
	assert.Equal(t, "next-hop", vals[0].Name)

	assert.True(t, tbl.IsKey("addr"))
	assert.False(t, tbl.IsKey("next-hop"))

	tbl.Keys = []string{"absent"}
	tbl.index = nil
	_, err = tbl.KeyFields()
	assert.ErrorIs(t, err, ErrNoSuchField)
}

func TestRegistry(t *testing.T) {
	_, err := Load("never-registered")
	assert.ErrorIs(t, err, ErrUnknownSchema)

	s := &Schema{Name: "reg-test", Root: &Node{Kind: Struct}}
	Register(s)
	got, err := Load("reg-test")
	assert.NoError(t, err)
	assert.Same(t, s, got)
}
