package nn

import "github.com/born-ml/sepconv/internal/tensor"

// GradientEntry is one parameter gradient together with its layout tag.
type GradientEntry struct {
	Key    string
	Tensor *tensor.RawTensor
	Order  tensor.Order
}

// Gradient maps parameter keys to gradients, preserving insertion order.
type Gradient struct {
	entries []GradientEntry
	index   map[string]int
}

// NewGradient returns an empty record.
func NewGradient() *Gradient {
	return &Gradient{index: make(map[string]int)}
}

// Set stores the gradient for key, replacing any previous entry in place.
func (g *Gradient) Set(key string, t *tensor.RawTensor, order tensor.Order) {
	e := GradientEntry{Key: key, Tensor: t, Order: order}
	if i, ok := g.index[key]; ok {
		g.entries[i] = e
		return
	}
	g.index[key] = len(g.entries)
	g.entries = append(g.entries, e)
}

// Get returns the gradient for key, or nil.
func (g *Gradient) Get(key string) *tensor.RawTensor {
	if i, ok := g.index[key]; ok {
		return g.entries[i].Tensor
	}
	return nil
}

// Order returns the layout tag recorded for key.
func (g *Gradient) Order(key string) (tensor.Order, bool) {
	if i, ok := g.index[key]; ok {
		return g.entries[i].Order, true
	}
	return 0, false
}

// Keys returns the keys in insertion order.
func (g *Gradient) Keys() []string {
	keys := make([]string, len(g.entries))
	for i, e := range g.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in insertion order.
func (g *Gradient) Entries() []GradientEntry {
	return append([]GradientEntry(nil), g.entries...)
}

// Len returns the number of entries.
func (g *Gradient) Len() int {
	return len(g.entries)
}
