package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	desc, err := r.Register("summary", Object(Field{Name: "text", Schema: String()}))
	require.NoError(t, err)
	assert.Equal(t, "summary", desc.Name)
	assert.NotEmpty(t, desc.Hash)

	got, ok := r.Lookup("summary")
	require.True(t, ok)
	assert.Equal(t, desc.Hash, got.Hash)
}

func TestRegisterIsIdempotentForIdenticalSchema(t *testing.T) {
	r := NewRegistry()
	schema := Object(Field{Name: "text", Schema: String()})
	first, err := r.Register("summary", schema)
	require.NoError(t, err)
	second, err := r.Register("summary", schema)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
}

func TestRegisterRejectsConflictingSchema(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("summary", Object(Field{Name: "text", Schema: String()}))
	require.NoError(t, err)

	_, err = r.Register("summary", Object(Field{Name: "text", Schema: Int()}))
	assert.Error(t, err)
}

func TestContentHashIsStableAcrossFieldDeclarationStyles(t *testing.T) {
	a := Object(Field{Name: "x", Schema: String()}, Field{Name: "y", Schema: Int()})
	b := Object(Field{Name: "x", Schema: String()}, Field{Name: "y", Schema: Int()})

	h1, err := ContentHash(a)
	require.NoError(t, err)
	h2, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestContentHashDiffersForDifferentShapes(t *testing.T) {
	a := Object(Field{Name: "x", Schema: String()})
	b := Object(Field{Name: "x", Schema: Int()})
	h1, _ := ContentHash(a)
	h2, _ := ContentHash(b)
	assert.NotEqual(t, h1, h2)
}

func TestLookupMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}
