package memory

import (
	"fmt"
	"sync"

	"github.com/born-ml/sepconv/internal/tensor"
)

// Well-known workspace names.
const (
	// CacheWorkspace backs the layer output cache between a training forward
	// pass and its backward pass.
	CacheWorkspace = "LAYER_CACHE"
	// WorkingWorkspace backs temporaries that live for one layer call.
	WorkingWorkspace = "LAYER_WORKING"
)

// Manager owns a set of named workspaces.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewManager creates a manager with the given workspaces already open.
func NewManager(names ...string) *Manager {
	m := &Manager{workspaces: make(map[string]*Workspace)}
	for _, name := range names {
		m.Workspace(name)
	}
	return m
}

// Workspace returns the named workspace, creating it on first use.
func (m *Manager) Workspace(name string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[name]
	if !ok {
		ws = &Workspace{name: name, pool: NewBufferPool()}
		m.workspaces[name] = ws
	}
	return ws
}

// Exists reports whether the named workspace is open.
func (m *Manager) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workspaces[name]
	return ok
}

// Remove closes the named workspace and drops its pooled memory. Tensors
// already allocated from it stay valid.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	ws, ok := m.workspaces[name]
	delete(m.workspaces, name)
	m.mu.Unlock()
	if ok {
		ws.pool.Clear()
	}
}

// Detached allocates a tensor outside every workspace. Its lifetime is
// governed by the garbage collector alone.
func (m *Manager) Detached(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// Workspace is a named pool of host memory handed out through scopes.
type Workspace struct {
	name string
	pool *BufferPool

	mu     sync.Mutex
	active int
}

// Name returns the workspace name.
func (w *Workspace) Name() string {
	return w.name
}

// Active returns the number of open scopes.
func (w *Workspace) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Stats returns the pool statistics of the workspace.
func (w *Workspace) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	return w.pool.Stats()
}

// Borrow opens a scope. Every tensor allocated from the scope is backed by
// memory that returns to the workspace when the scope is closed.
func (w *Workspace) Borrow() *Scope {
	w.mu.Lock()
	w.active++
	w.mu.Unlock()
	return &Scope{ws: w}
}

// Scope tracks the slabs borrowed from a workspace. A Scope is not safe for
// concurrent use.
type Scope struct {
	ws     *Workspace
	slabs  [][]byte
	closed bool
}

// Workspace returns the workspace the scope borrows from.
func (s *Scope) Workspace() *Workspace {
	return s.ws
}

// Alloc returns a zeroed row-major tensor backed by workspace memory. The
// tensor must not be used after Close.
func (s *Scope) Alloc(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	if s.closed {
		return nil, fmt.Errorf("memory: allocation from closed scope of workspace %q", s.ws.name)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	slab := s.ws.pool.Acquire(shape.NumElements() * dtype.Size())
	t, err := tensor.NewRawFromBuffer(slab, shape, dtype, tensor.C)
	if err != nil {
		s.ws.pool.Release(slab)
		return nil, fmt.Errorf("memory: %w", err)
	}
	s.slabs = append(s.slabs, slab)
	return t, nil
}

// Close returns all borrowed memory to the workspace. Closing twice is a
// no-op.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, slab := range s.slabs {
		s.ws.pool.Release(slab)
	}
	s.slabs = nil

	s.ws.mu.Lock()
	s.ws.active--
	s.ws.mu.Unlock()
}
