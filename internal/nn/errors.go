package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/sepconv/internal/tensor"
)

// Common errors.
var (
	ErrInvalidInputShape = errors.New("invalid input shape")
	ErrChannelMismatch   = errors.New("input channel mismatch")
	ErrMissingInput      = errors.New("no input set")
)

// flattenedInputHint is appended when a rank-2 tensor reaches the layer.
const flattenedInputHint = "input looks flattened to [N, C*H*W]; reshape it to [N, C, H, W] " +
	"or declare a convolutional input type upstream"

// InvalidInputShapeError reports an input or epsilon of the wrong rank,
// shape or dtype.
type InvalidInputShapeError struct {
	Layer  string
	Index  int
	Op     string // "activate", "preOutput" or "backprop"
	Shape  tensor.Shape
	Reason string
	Hint   string
}

// Error implements the error interface.
func (e *InvalidInputShapeError) Error() string {
	msg := fmt.Sprintf("%s: layer %q (index %d) %s: %s, got %v",
		ErrInvalidInputShape, e.Layer, e.Index, e.Op, e.Reason, e.Shape)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidInputShape) succeed.
func (e *InvalidInputShapeError) Is(target error) bool {
	return target == ErrInvalidInputShape
}

// ChannelMismatchError reports an input whose channel count differs from the
// depthwise weights.
type ChannelMismatchError struct {
	Layer    string
	Index    int
	Op       string
	Shape    tensor.Shape
	Got      int
	Expected int
}

// Error implements the error interface.
func (e *ChannelMismatchError) Error() string {
	return fmt.Sprintf("%s: layer %q (index %d) %s: input depth %d, expected %d (input shape %v)",
		ErrChannelMismatch, e.Layer, e.Index, e.Op, e.Got, e.Expected, e.Shape)
}

// Is makes errors.Is(err, ErrChannelMismatch) succeed.
func (e *ChannelMismatchError) Is(target error) bool {
	return target == ErrChannelMismatch
}

// MissingInputError reports a forward or backward call before SetInput.
type MissingInputError struct {
	Layer string
	Index int
	Op    string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: layer %q (index %d) %s: call SetInput first", ErrMissingInput, e.Layer, e.Index, e.Op)
}

// Is makes errors.Is(err, ErrMissingInput) succeed.
func (e *MissingInputError) Is(target error) bool {
	return target == ErrMissingInput
}
