package ometiff

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// EncodeOptions controls Encode.
type EncodeOptions struct {
	// Description is stored as the first page's ImageDescription. When empty a
	// {"shape": [...]} description is written so that readers can restore the
	// array dimensions.
	Description string

	// BigTIFF forces 64-bit offsets. Files that would not fit in a classic
	// TIFF always get them.
	BigTIFF bool
}

// Encode writes a as an uncompressed multi-page TIFF. The last two dimensions
// are the rows and columns of each page and all leading dimensions are
// flattened into the page sequence.
func Encode(w io.Writer, a *PixelArray, opt *EncodeOptions) error {
	if opt == nil {
		opt = &EncodeOptions{}
	}
	if a.NDim() < 2 {
		return fmt.Errorf("cannot encode a %d-dimensional array as an image", a.NDim())
	}
	if err := a.validate(); err != nil {
		return err
	}

	height, width := a.Shape[a.NDim()-2], a.Shape[a.NDim()-1]
	nPages := product(a.Shape[:a.NDim()-2])
	planeBytes := uint64(height * width * a.DType.Size())
	if planeBytes == 0 || nPages == 0 {
		return fmt.Errorf("cannot encode an empty array of shape %v", a.Shape)
	}

	desc := opt.Description
	if desc == "" {
		b, err := json.Marshal(struct {
			Shape []int `json:"shape"`
		}{a.Shape})
		if err != nil {
			return err
		}
		desc = string(b)
	}
	descBytes := append([]byte(desc), 0)

	e := &encoder{
		w:   bufio.NewWriter(w),
		big: opt.BigTIFF || uint64(nPages)*(planeBytes+512)+uint64(len(descBytes)) > math.MaxUint32-(1<<20),
	}

	bits, format := a.DType.tiffFormat()

	e.header(padded(planeBytes))
	for i := 0; i < nPages; i++ {
		dataOff := e.pos
		e.write(a.Data[uint64(i)*planeBytes : uint64(i+1)*planeBytes])
		e.pad()

		entries := []ifdEntry{
			{tag: tagImageWidth, typ: dtLong, count: 1, value: uint64(width)},
			{tag: tagImageLength, typ: dtLong, count: 1, value: uint64(height)},
			{tag: tagBitsPerSample, typ: dtShort, count: 1, value: uint64(bits)},
			{tag: tagCompression, typ: dtShort, count: 1, value: compressionNone},
			{tag: tagPhotometric, typ: dtShort, count: 1, value: 1},
		}
		if i == 0 {
			entries = append(entries, ifdEntry{tag: tagImageDesc, typ: dtASCII, count: uint64(len(descBytes)), data: descBytes})
		}
		entries = append(entries,
			ifdEntry{tag: tagStripOffsets, typ: e.offsetType(), count: 1, value: dataOff},
			ifdEntry{tag: tagSamplesPerPixel, typ: dtShort, count: 1, value: 1},
			ifdEntry{tag: tagRowsPerStrip, typ: dtLong, count: 1, value: uint64(height)},
			ifdEntry{tag: tagStripByteCounts, typ: e.offsetType(), count: 1, value: planeBytes},
			ifdEntry{tag: tagPlanarConfig, typ: dtShort, count: 1, value: 1},
			ifdEntry{tag: tagSampleFormat, typ: dtShort, count: 1, value: uint64(format)},
		)

		var next uint64
		if i < nPages-1 {
			next = e.pos + e.ifdLen(entries) + padded(planeBytes)
		}
		e.ifd(entries, next)
	}

	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

// EncodePlane writes a single 2-dimensional plane. Unsigned 8 and 16 bit
// planes are written as Deflate-compressed grayscale images; other types fall
// back to Encode.
func EncodePlane(w io.Writer, a *PixelArray) error {
	if a.NDim() != 2 {
		return fmt.Errorf("expected a 2-dimensional plane, got shape %v", a.Shape)
	}
	if err := a.validate(); err != nil {
		return err
	}

	rect := image.Rect(0, 0, a.Shape[1], a.Shape[0])
	opts := &tiff.Options{Compression: tiff.Deflate}

	switch a.DType {
	case Uint8:
		img := image.NewGray(rect)
		copy(img.Pix, a.Data)
		return tiff.Encode(w, img, opts)
	case Uint16:
		img := image.NewGray16(rect)
		for i := 0; i+1 < len(a.Data); i += 2 {
			// image.Gray16 stores big-endian samples
			img.Pix[i], img.Pix[i+1] = a.Data[i+1], a.Data[i]
		}
		return tiff.Encode(w, img, opts)
	}

	return Encode(w, a, nil)
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint64
	value uint64
	data  []byte
}

type encoder struct {
	w   *bufio.Writer
	big bool
	pos uint64
	err error
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(b)
	e.pos += uint64(n)
	e.err = err
}

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.write(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.write(b[:])
}

func (e *encoder) pad() {
	if e.pos%2 == 1 {
		e.write([]byte{0})
	}
}

func (e *encoder) fieldLen() uint64 {
	if e.big {
		return 8
	}
	return 4
}

func (e *encoder) offsetType() uint16 {
	if e.big {
		return dtLong8
	}
	return dtLong
}

// header writes the file header. The first page's data follows it directly,
// so the first IFD sits firstData bytes later.
func (e *encoder) header(firstData uint64) {
	e.write([]byte("II"))
	if e.big {
		e.u16(43)
		e.u16(8)
		e.u16(0)
		e.u64(16 + firstData)
		return
	}
	e.u16(42)
	e.u32(uint32(8 + firstData))
}

// ifdLen is the size of an IFD including its out-of-line values.
func (e *encoder) ifdLen(entries []ifdEntry) uint64 {
	n := uint64(len(entries))
	size := 2 + 12*n + 4
	if e.big {
		size = 8 + 20*n + 8
	}
	for _, en := range entries {
		if uint64(len(en.data)) > e.fieldLen() {
			size += padded(uint64(len(en.data)))
		}
	}
	return size
}

// ifd writes the directory at the current position, followed by any values
// too large for their entry.
func (e *encoder) ifd(entries []ifdEntry, next uint64) {
	start := e.pos
	n := uint64(len(entries))

	extraOff := start + 2 + 12*n + 4
	if e.big {
		extraOff = start + 8 + 20*n + 8
		e.u64(n)
	} else {
		e.u16(uint16(n))
	}

	var extra [][]byte
	for _, en := range entries {
		e.u16(en.tag)
		e.u16(en.typ)
		if e.big {
			e.u64(en.count)
		} else {
			e.u32(uint32(en.count))
		}

		field := make([]byte, e.fieldLen())
		switch {
		case en.data != nil && uint64(len(en.data)) <= e.fieldLen():
			copy(field, en.data)
		case en.data != nil:
			e.putOffset(field, extraOff)
			extraOff += padded(uint64(len(en.data)))
			extra = append(extra, en.data)
		case en.typ == dtShort:
			binary.LittleEndian.PutUint16(field, uint16(en.value))
		case en.typ == dtLong:
			binary.LittleEndian.PutUint32(field, uint32(en.value))
		default:
			binary.LittleEndian.PutUint64(field, en.value)
		}
		e.write(field)
	}

	if e.big {
		e.u64(next)
	} else {
		e.u32(uint32(next))
	}

	for _, b := range extra {
		e.write(b)
		e.pad()
	}
}

func (e *encoder) putOffset(field []byte, off uint64) {
	if e.big {
		binary.LittleEndian.PutUint64(field, off)
		return
	}
	binary.LittleEndian.PutUint32(field, uint32(off))
}

func padded(n uint64) uint64 {
	return n + n%2
}
