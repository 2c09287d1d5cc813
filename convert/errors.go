package convert

import "fmt"

// ShapeError reports an expression image that does not squeeze to CYX.
type ShapeError struct {
	Path  string
	Shape []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: need only CYX dimensions, but the squeezed image has shape %v (%d dimensions)", e.Path, e.Shape, len(e.Shape))
}

// NotFoundError reports a mask image without a "cell" or "cells" channel.
type NotFoundError struct {
	Path     string
	Channels []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no cell channel found in mask (channels: %q)", e.Path, e.Channels)
}
