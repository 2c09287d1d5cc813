package ometiff

import "fmt"

// PixelArray is an N-dimensional array of samples stored row-major in
// little-endian byte order.
type PixelArray struct {
	Shape []int

	// Axes optionally names each dimension, e.g. "TCZYX". It is empty when the
	// source did not describe its axes.
	Axes string

	DType DType
	Data  []byte
}

// NDim is the number of dimensions.
func (a *PixelArray) NDim() int {
	return len(a.Shape)
}

// Len is the number of samples.
func (a *PixelArray) Len() int {
	return product(a.Shape)
}

// Squeeze returns a view of a with every length-1 dimension removed. The data
// is shared.
func (a *PixelArray) Squeeze() *PixelArray {
	out := &PixelArray{DType: a.DType, Data: a.Data, Shape: []int{}}

	keepAxes := len(a.Axes) == len(a.Shape)
	axes := make([]byte, 0, len(a.Axes))
	for i, n := range a.Shape {
		if n == 1 {
			continue
		}
		out.Shape = append(out.Shape, n)
		if keepAxes {
			axes = append(axes, a.Axes[i])
		}
	}
	if keepAxes {
		out.Axes = string(axes)
	}

	return out
}

// Index selects position i along the first dimension and returns the
// remaining (N-1)-dimensional view. The data is shared.
func (a *PixelArray) Index(i int) (*PixelArray, error) {
	if a.NDim() == 0 {
		return nil, fmt.Errorf("cannot index a 0-dimensional array")
	}
	if i < 0 || i >= a.Shape[0] {
		return nil, fmt.Errorf("index %d out of range for axis 0 with size %d", i, a.Shape[0])
	}

	stride := product(a.Shape[1:]) * a.DType.Size()

	out := &PixelArray{
		Shape: append([]int{}, a.Shape[1:]...),
		DType: a.DType,
		Data:  a.Data[i*stride : (i+1)*stride],
	}
	if len(a.Axes) == len(a.Shape) {
		out.Axes = a.Axes[1:]
	}

	return out, nil
}

func (a *PixelArray) validate() error {
	if a.DType.Size() == 0 {
		return fmt.Errorf("invalid dtype %v", a.DType)
	}
	if want := a.Len() * a.DType.Size(); len(a.Data) != want {
		return fmt.Errorf("array of shape %v and dtype %v needs %d bytes, has %d", a.Shape, a.DType, want, len(a.Data))
	}
	return nil
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
