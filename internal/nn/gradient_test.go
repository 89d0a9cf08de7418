package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sepconv/internal/tensor"
)

func TestGradient_SetGetOrder(t *testing.T) {
	a, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32)
	require.NoError(t, err)
	b, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float32)
	require.NoError(t, err)

	g := NewGradient()
	g.Set("W", a, tensor.C)
	g.Set("pW", b, tensor.F)
	g.Set("W", b, tensor.C) // replaces in place

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"W", "pW"}, g.Keys())
	assert.Same(t, b, g.Get("W"))
	assert.Nil(t, g.Get("b"))

	order, ok := g.Order("pW")
	require.True(t, ok)
	assert.Equal(t, tensor.F, order)
	_, ok = g.Order("b")
	assert.False(t, ok)

	entries := g.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "W", entries[0].Key)
	entries[0].Key = "mutated"
	assert.Equal(t, "W", g.Entries()[0].Key)
}
