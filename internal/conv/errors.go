package conv

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is matched by every *InvalidGeometryError.
var ErrInvalidGeometry = errors.New("invalid convolution geometry")

// InvalidGeometryError reports a configuration that yields no valid output.
type InvalidGeometryError struct {
	Axis   string // "height", "width" or empty
	Reason string
}

// Error implements the error interface.
func (e *InvalidGeometryError) Error() string {
	if e.Axis != "" {
		return fmt.Sprintf("%s: %s: %s", ErrInvalidGeometry, e.Axis, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidGeometry, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidGeometry) succeed.
func (e *InvalidGeometryError) Is(target error) bool {
	return target == ErrInvalidGeometry
}

func withAxis(err error, axis string) error {
	var ge *InvalidGeometryError
	if errors.As(err, &ge) && ge.Axis == "" {
		return &InvalidGeometryError{Axis: axis, Reason: ge.Reason}
	}
	return err
}
