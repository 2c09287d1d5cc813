package ometiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// TIFF tags read or written by this package
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagImageDesc       = 270
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
)

// TIFF field types
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtIFD       = 13
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

var fieldSize = map[uint16]uint64{
	dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4, dtRational: 8,
	dtSByte: 1, dtUndefined: 1, dtSShort: 2, dtSLong: 4, dtSRational: 8,
	dtFloat: 4, dtDouble: 8, dtIFD: 4, dtLong8: 8, dtSLong8: 8, dtIFD8: 8,
}

// maxFieldBytes bounds a single out-of-line tag value.
const maxFieldBytes = 256 << 20

// maxPages bounds the IFD chain, which also stops offset cycles.
const maxPages = 1 << 20

// maxPlaneBytes bounds the decoded size of one page or tile.
const maxPlaneBytes = 2 << 30

// maxArrayBytes bounds the decoded size of a whole image series.
const maxArrayBytes = 32 << 30

// page is one decoded IFD.
type page struct {
	width           int
	height          int
	bitsPerSample   int
	sampleFormat    int
	samplesPerPixel int
	compression     int
	predictor       int
	planarConfig    int
	rowsPerStrip    int
	stripOffsets    []uint64
	stripCounts     []uint64
	tileWidth       int
	tileLength      int
	tileOffsets     []uint64
	tileCounts      []uint64
	description     string
}

func (p *page) tiled() bool {
	return p.tileWidth > 0 && p.tileLength > 0
}

// planeBytes is the decoded size of the page, checked against maxPlaneBytes.
func (p *page) planeBytes(sampleBytes int) (int, error) {
	n, ok := mulBounded(maxPlaneBytes, p.width, p.height, p.samplesPerPixel, sampleBytes)
	if !ok {
		return 0, fmt.Errorf("%dx%d image with %d samples of %d bytes exceeds %d bytes per plane",
			p.width, p.height, p.samplesPerPixel, sampleBytes, maxPlaneBytes)
	}
	return int(n), nil
}

// mulBounded multiplies positive factors. It reports false if any factor is
// not positive or the product would pass limit.
func mulBounded(limit int64, factors ...int) (int64, bool) {
	n := int64(1)
	for _, f := range factors {
		if f <= 0 || int64(f) > limit/n {
			return 0, false
		}
		n *= int64(f)
	}
	return n, true
}

type ifdReader struct {
	r     io.ReaderAt
	order binary.ByteOrder
	big   bool
}

func (d *ifdReader) readAt(n uint64, off uint64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := d.r.ReadAt(buf, int64(off)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// read parses the IFD at off and returns it together with the offset of the
// next IFD (0 at the end of the chain).
func (d *ifdReader) read(off uint64) (*page, uint64, error) {
	countLen, entryLen, offLen := uint64(2), uint64(12), uint64(4)
	if d.big {
		countLen, entryLen, offLen = 8, 20, 8
	}

	head, err := d.readAt(countLen, off)
	if err != nil {
		return nil, 0, fmt.Errorf("IFD at %d: %w", off, err)
	}
	var n uint64
	if d.big {
		n = d.order.Uint64(head)
	} else {
		n = uint64(d.order.Uint16(head))
	}
	if n > 4096 {
		return nil, 0, fmt.Errorf("IFD at %d claims %d entries", off, n)
	}

	body, err := d.readAt(n*entryLen+offLen, off+countLen)
	if err != nil {
		return nil, 0, fmt.Errorf("IFD at %d: %w", off, err)
	}

	p := &page{
		compression:     1,
		samplesPerPixel: 1,
		sampleFormat:    sampleFormatUint,
		predictor:       1,
		planarConfig:    1,
	}

	for i := uint64(0); i < n; i++ {
		e := body[i*entryLen : (i+1)*entryLen]
		if err := d.applyEntry(p, e); err != nil {
			return nil, 0, fmt.Errorf("IFD at %d: %w", off, err)
		}
	}

	tail := body[n*entryLen:]
	var next uint64
	if d.big {
		next = d.order.Uint64(tail)
	} else {
		next = uint64(d.order.Uint32(tail))
	}

	if p.width <= 0 || p.height <= 0 {
		return nil, 0, fmt.Errorf("IFD at %d has no image dimensions", off)
	}
	if p.rowsPerStrip <= 0 || p.rowsPerStrip > p.height {
		p.rowsPerStrip = p.height
	}

	return p, next, nil
}

func (d *ifdReader) applyEntry(p *page, e []byte) error {
	tag := d.order.Uint16(e[0:2])
	typ := d.order.Uint16(e[2:4])

	var count uint64
	var field []byte
	if d.big {
		count = d.order.Uint64(e[4:12])
		field = e[12:20]
	} else {
		count = uint64(d.order.Uint32(e[4:8]))
		field = e[8:12]
	}

	size, known := fieldSize[typ]
	if !known {
		// Unknown field types are legal and must be skipped.
		return nil
	}

	switch tag {
	case tagImageWidth, tagImageLength, tagBitsPerSample, tagCompression, tagImageDesc,
		tagStripOffsets, tagSamplesPerPixel, tagRowsPerStrip, tagStripByteCounts,
		tagPlanarConfig, tagPredictor, tagTileWidth, tagTileLength, tagTileOffsets,
		tagTileByteCounts, tagSampleFormat:
	default:
		return nil
	}

	total := size * count
	if total > maxFieldBytes {
		return fmt.Errorf("tag %d value of %d bytes is too large", tag, total)
	}

	raw := field[:0]
	if total <= uint64(len(field)) {
		raw = field[:total]
	} else {
		var valueOff uint64
		if d.big {
			valueOff = d.order.Uint64(field)
		} else {
			valueOff = uint64(d.order.Uint32(field))
		}
		var err error
		if raw, err = d.readAt(total, valueOff); err != nil {
			return fmt.Errorf("tag %d: %w", tag, err)
		}
	}

	if tag == tagImageDesc {
		p.description = strings.TrimRight(string(raw), "\x00")
		return nil
	}

	vals, err := d.uints(typ, count, raw)
	if err != nil {
		return fmt.Errorf("tag %d: %w", tag, err)
	}
	if len(vals) == 0 {
		return fmt.Errorf("tag %d has no values", tag)
	}

	switch tag {
	case tagStripOffsets, tagStripByteCounts, tagTileOffsets, tagTileByteCounts:
	default:
		if vals[0] > math.MaxInt32 {
			return fmt.Errorf("tag %d value %d is out of range", tag, vals[0])
		}
	}
	first := int(vals[0])
	switch tag {
	case tagImageWidth:
		p.width = first
	case tagImageLength:
		p.height = first
	case tagBitsPerSample:
		for _, v := range vals {
			if v != vals[0] {
				return fmt.Errorf("mixed BitsPerSample %v are not supported", vals)
			}
		}
		p.bitsPerSample = first
	case tagCompression:
		p.compression = first
	case tagSamplesPerPixel:
		p.samplesPerPixel = first
	case tagRowsPerStrip:
		p.rowsPerStrip = first
	case tagPlanarConfig:
		p.planarConfig = first
	case tagPredictor:
		p.predictor = first
	case tagSampleFormat:
		p.sampleFormat = first
	case tagTileWidth:
		p.tileWidth = first
	case tagTileLength:
		p.tileLength = first
	case tagStripOffsets:
		p.stripOffsets = vals
	case tagStripByteCounts:
		p.stripCounts = vals
	case tagTileOffsets:
		p.tileOffsets = vals
	case tagTileByteCounts:
		p.tileCounts = vals
	}

	return nil
}

func (d *ifdReader) uints(typ uint16, count uint64, raw []byte) ([]uint64, error) {
	out := make([]uint64, count)
	for i := range out {
		switch typ {
		case dtByte, dtUndefined, dtSByte:
			out[i] = uint64(raw[i])
		case dtShort, dtSShort:
			out[i] = uint64(d.order.Uint16(raw[2*i:]))
		case dtLong, dtSLong, dtIFD:
			out[i] = uint64(d.order.Uint32(raw[4*i:]))
		case dtLong8, dtSLong8, dtIFD8:
			out[i] = d.order.Uint64(raw[8*i:])
		default:
			return nil, fmt.Errorf("field type %d is not an integer type", typ)
		}
	}
	return out, nil
}
