package ometiff

import "fmt"

// DType is the numeric type of a pixel sample.
type DType uint8

const (
	Invalid DType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// TIFF SampleFormat values
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

var dtypeNames = map[DType]string{
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Float32: "float32",
	Float64: "float64",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("DType(%d)", uint8(d))
}

// Size is the number of bytes per sample.
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (d DType) tiffFormat() (bits, format uint16) {
	switch d {
	case Uint8, Uint16, Uint32:
		format = sampleFormatUint
	case Int8, Int16, Int32:
		format = sampleFormatInt
	case Float32, Float64:
		format = sampleFormatFloat
	}
	return uint16(8 * d.Size()), format
}

func dtypeFor(bits, format int) (DType, error) {
	if format == 0 {
		format = sampleFormatUint
	}

	switch {
	case format == sampleFormatUint && bits == 8:
		return Uint8, nil
	case format == sampleFormatUint && bits == 16:
		return Uint16, nil
	case format == sampleFormatUint && bits == 32:
		return Uint32, nil
	case format == sampleFormatInt && bits == 8:
		return Int8, nil
	case format == sampleFormatInt && bits == 16:
		return Int16, nil
	case format == sampleFormatInt && bits == 32:
		return Int32, nil
	case format == sampleFormatFloat && bits == 32:
		return Float32, nil
	case format == sampleFormatFloat && bits == 64:
		return Float64, nil
	}

	return Invalid, fmt.Errorf("unsupported sample layout: %d bits with SampleFormat %d", bits, format)
}

// DTypeFromOME maps an OME Pixels Type attribute to a DType.
func DTypeFromOME(t string) (DType, error) {
	switch t {
	case "uint8":
		return Uint8, nil
	case "int8":
		return Int8, nil
	case "uint16":
		return Uint16, nil
	case "int16":
		return Int16, nil
	case "uint32":
		return Uint32, nil
	case "int32":
		return Int32, nil
	case "float":
		return Float32, nil
	case "double":
		return Float64, nil
	}
	return Invalid, fmt.Errorf("unsupported OME pixel type %q", t)
}
