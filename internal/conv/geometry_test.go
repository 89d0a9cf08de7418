package conv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputSize_Explicit(t *testing.T) {
	tests := []struct {
		name                         string
		in, kernel, stride, pad, dil int
		want                         int
	}{
		{"shape preserving 3x3", 32, 3, 1, 1, 1, 32},
		{"valid 5x5", 28, 5, 1, 0, 1, 24},
		{"stride 2 truncates", 28, 3, 2, 0, 1, 13},
		{"downsample 2x2", 4, 2, 2, 0, 1, 2},
		{"dilation 2", 10, 3, 1, 0, 2, 6},
		{"dilation with padding", 10, 3, 1, 2, 2, 10},
		{"kernel equals input", 5, 5, 1, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputSize(tt.in, tt.kernel, tt.stride, tt.pad, tt.dil, Explicit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputSize_SameIsCeilDivision(t *testing.T) {
	for in := 1; in <= 20; in++ {
		for stride := 1; stride <= 4; stride++ {
			for kernel := 1; kernel <= 7; kernel += 2 {
				for dil := 1; dil <= 3; dil++ {
					got, err := OutputSize(in, kernel, stride, 0, dil, Same)
					require.NoError(t, err)
					want := (in + stride - 1) / stride
					assert.Equal(t, want, got, "in=%d stride=%d kernel=%d dilation=%d", in, stride, kernel, dil)
				}
			}
		}
	}
}

func TestOutputSize_Invalid(t *testing.T) {
	tests := []struct {
		name                         string
		in, kernel, stride, pad, dil int
		mode                         Mode
	}{
		{"kernel exceeds padded input", 3, 5, 1, 0, 1, Explicit},
		{"dilated kernel exceeds input", 4, 3, 1, 0, 2, Explicit},
		{"zero stride", 8, 3, 0, 0, 1, Explicit},
		{"negative stride", 8, 3, -1, 0, 1, Same},
		{"zero kernel", 8, 0, 1, 0, 1, Explicit},
		{"zero dilation", 8, 3, 1, 0, 0, Explicit},
		{"negative padding", 8, 3, 1, -1, 1, Explicit},
		{"zero input", 0, 1, 1, 0, 1, Same},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OutputSize(tt.in, tt.kernel, tt.stride, tt.pad, tt.dil, tt.mode)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGeometry))

			var ge *InvalidGeometryError
			assert.True(t, errors.As(err, &ge))
		})
	}
}

func TestSameModeTopLeftPadding(t *testing.T) {
	tests := []struct {
		name                         string
		out, in, kernel, stride, dil int
		want                         int
	}{
		{"3x3 stride 1 even total", 8, 8, 3, 1, 1, 1},
		{"4x4 stride 1 odd total favours top", 8, 8, 4, 1, 1, 2},
		{"stride 2 odd total", 4, 8, 3, 2, 1, 1},
		{"stride 2 total 2", 5, 9, 3, 2, 1, 1},
		{"kernel smaller than stride clamps to zero", 4, 8, 1, 2, 1, 0},
		{"dilated 3x3", 8, 8, 3, 1, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameModeTopLeftPadding(tt.out, tt.in, tt.kernel, tt.stride, tt.dil))
		})
	}
}

func TestResolve_Explicit(t *testing.T) {
	cfg := Config{
		Kernel:   [2]int{3, 5},
		Stride:   [2]int{1, 2},
		Padding:  [2]int{1, 2},
		Dilation: [2]int{1, 1},
		Mode:     Explicit,
	}

	g, err := Resolve(32, 20, cfg)
	require.NoError(t, err)

	assert.Equal(t, 32, g.OutH)
	assert.Equal(t, 10, g.OutW) // floor((20+4-4-1)/2)+1
	assert.Equal(t, 1, g.PadH)
	assert.Equal(t, 2, g.PadW)
	assert.False(t, g.Same)
}

func TestResolve_SameIgnoresConfiguredPadding(t *testing.T) {
	cfg := Config{
		Kernel:   [2]int{4, 3},
		Stride:   [2]int{1, 2},
		Padding:  [2]int{9, 9},
		Dilation: [2]int{1, 1},
		Mode:     Same,
	}

	g, err := Resolve(7, 7, cfg)
	require.NoError(t, err)

	assert.Equal(t, 7, g.OutH)
	assert.Equal(t, 4, g.OutW)
	assert.Equal(t, 2, g.PadH) // total 3
	assert.Equal(t, 1, g.PadW) // total 2
	assert.True(t, g.Same)
}

func TestResolve_InvalidNamesAxis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kernel = [2]int{3, 9}

	_, err := Resolve(8, 8, cfg)
	require.Error(t, err)

	var ge *InvalidGeometryError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "width", ge.Axis)
	assert.Contains(t, err.Error(), "width")
}

func TestGeometry_ArgsRoundTrip(t *testing.T) {
	cfg := Config{
		Kernel:   [2]int{3, 3},
		Stride:   [2]int{2, 1},
		Dilation: [2]int{1, 2},
		Mode:     Same,
	}
	g, err := Resolve(11, 9, cfg)
	require.NoError(t, err)

	args := g.Args()
	require.Len(t, args, NumArgs)
	assert.Equal(t, []int{3, 3, 2, 1, g.PadH, g.PadW, 1, 2, 1}, args)

	parsed, err := ParseArgs(args, 11, 9)
	require.NoError(t, err)
	assert.Equal(t, g, parsed)
}

func TestParseArgs_WrongCount(t *testing.T) {
	_, err := ParseArgs([]int{3, 3, 1, 1}, 8, 8)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("same")
	require.NoError(t, err)
	assert.Equal(t, Same, m)

	m, err = ParseMode("explicit")
	require.NoError(t, err)
	assert.Equal(t, Explicit, m)

	_, err = ParseMode("strict")
	assert.Error(t, err)
}
