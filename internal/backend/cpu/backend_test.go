package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/sepconv/internal/parallel"
	"github.com/born-ml/sepconv/internal/tensor"
)

// TestCPUBackend_New tests backend creation.
func TestCPUBackend_New(t *testing.T) {
	backend := New()
	assert.NotNil(t, backend)
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
	assert.Equal(t, parallel.DefaultConfig(), backend.Parallel())
}

func TestCPUBackend_NewWithConfig(t *testing.T) {
	cfg := parallel.Sequential()
	backend := NewWithConfig(cfg)
	assert.Equal(t, cfg, backend.Parallel())
	assert.False(t, backend.Parallel().Enabled)
}
