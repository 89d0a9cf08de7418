package nn

import (
	"github.com/born-ml/sepconv/internal/memory"
	"github.com/born-ml/sepconv/internal/tensor"
)

// cacheSlot carries one pre-activation tensor from a training forward pass to
// the backward pass that follows it. It holds at most one tensor; take empties
// it, and produce replaces whatever it held.
type cacheSlot struct {
	z     *tensor.RawTensor
	scope *memory.Scope
}

// produce stores a deep copy of z in memory borrowed from ws.
func (c *cacheSlot) produce(z *tensor.RawTensor, ws *memory.Workspace) error {
	c.invalidate()

	scope := ws.Borrow()
	dup, err := scope.Alloc(z.Shape(), z.DType())
	if err != nil {
		scope.Close()
		return err
	}
	if err := dup.CopyFrom(z); err != nil {
		scope.Close()
		return err
	}
	c.z, c.scope = dup, scope
	return nil
}

// take empties the slot. The caller must call release once done with z.
func (c *cacheSlot) take() (z *tensor.RawTensor, release func(), ok bool) {
	if c.z == nil {
		return nil, nil, false
	}
	z, scope := c.z, c.scope
	c.z, c.scope = nil, nil
	return z, scope.Close, true
}

func (c *cacheSlot) filled() bool {
	return c.z != nil
}

func (c *cacheSlot) invalidate() {
	if c.scope != nil {
		c.scope.Close()
	}
	c.z, c.scope = nil, nil
}
