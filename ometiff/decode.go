package ometiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// TIFF Compression values
const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionPackBits   = 32773
	compressionDeflateOld = 32946
)

func (r *Reader) decodePage(p *page) ([]byte, DType, error) {
	dt, err := dtypeFor(p.bitsPerSample, p.sampleFormat)
	if err != nil {
		return nil, Invalid, err
	}
	if p.samplesPerPixel > 1 && p.planarConfig != 1 {
		return nil, Invalid, fmt.Errorf("planar configuration %d is not supported", p.planarConfig)
	}

	bps := dt.Size()
	size, err := p.planeBytes(bps)
	if err != nil {
		return nil, Invalid, err
	}
	if p.compression == compressionNone && r.size > 0 && int64(size) > r.size {
		return nil, Invalid, fmt.Errorf("uncompressed page needs %d bytes but the file has %d", size, r.size)
	}

	pixelBytes := p.samplesPerPixel * bps
	rowBytes := p.width * pixelBytes
	out := make([]byte, size)

	if p.tiled() {
		if len(p.tileOffsets) != len(p.tileCounts) {
			return nil, Invalid, fmt.Errorf("%d tile offsets but %d tile byte counts", len(p.tileOffsets), len(p.tileCounts))
		}

		across := (p.width + p.tileWidth - 1) / p.tileWidth
		down := (p.height + p.tileLength - 1) / p.tileLength
		if len(p.tileOffsets) < across*down {
			return nil, Invalid, fmt.Errorf("%d tiles present, %d needed", len(p.tileOffsets), across*down)
		}

		tileBytes, ok := mulBounded(maxPlaneBytes, p.tileWidth, p.tileLength, pixelBytes)
		if !ok {
			return nil, Invalid, fmt.Errorf("%dx%d tiles exceed %d bytes", p.tileWidth, p.tileLength, maxPlaneBytes)
		}

		tileRowBytes := p.tileWidth * pixelBytes
		for i := 0; i < across*down; i++ {
			raw, err := r.chunk(p, p.tileOffsets[i], p.tileCounts[i], int(tileBytes))
			if err != nil {
				return nil, Invalid, fmt.Errorf("tile %d: %w", i, err)
			}
			if err := undoPredictor(p, r.ifd.order, raw, p.tileWidth, p.tileLength, bps); err != nil {
				return nil, Invalid, err
			}

			x0 := (i % across) * p.tileWidth
			y0 := (i / across) * p.tileLength
			cols := p.tileWidth
			if x0+cols > p.width {
				cols = p.width - x0
			}
			for row := 0; row < p.tileLength && y0+row < p.height; row++ {
				dst := (y0+row)*rowBytes + x0*pixelBytes
				src := row * tileRowBytes
				copy(out[dst:dst+cols*pixelBytes], raw[src:src+cols*pixelBytes])
			}
		}
	} else {
		if len(p.stripOffsets) != len(p.stripCounts) {
			return nil, Invalid, fmt.Errorf("%d strip offsets but %d strip byte counts", len(p.stripOffsets), len(p.stripCounts))
		}

		rps := p.rowsPerStrip
		needed := (p.height + rps - 1) / rps
		if len(p.stripOffsets) < needed {
			return nil, Invalid, fmt.Errorf("%d strips present, %d needed", len(p.stripOffsets), needed)
		}

		for i := 0; i < needed; i++ {
			row0 := i * rps
			rows := rps
			if row0+rows > p.height {
				rows = p.height - row0
			}

			raw, err := r.chunk(p, p.stripOffsets[i], p.stripCounts[i], rows*rowBytes)
			if err != nil {
				return nil, Invalid, fmt.Errorf("strip %d: %w", i, err)
			}
			if err := undoPredictor(p, r.ifd.order, raw, p.width, rows, bps); err != nil {
				return nil, Invalid, err
			}

			copy(out[row0*rowBytes:], raw)
		}
	}

	if r.ifd.order == binary.BigEndian && bps > 1 {
		swapBytes(out, bps)
	}

	return out, dt, nil
}

// chunk reads one strip or tile and returns exactly want decompressed bytes.
func (r *Reader) chunk(p *page, offset, count uint64, want int) ([]byte, error) {
	if r.size > 0 && offset+count > uint64(r.size) {
		return nil, fmt.Errorf("data at %d+%d runs past the end of the file", offset, count)
	}
	if count > maxFieldBytes*4 {
		return nil, fmt.Errorf("chunk of %d bytes is too large", count)
	}

	raw, err := r.ifd.readAt(count, offset)
	if err != nil {
		return nil, err
	}

	switch p.compression {
	case compressionNone:
		if len(raw) < want {
			return nil, fmt.Errorf("uncompressed chunk has %d bytes, need %d", len(raw), want)
		}
		return raw[:want], nil
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer rc.Close()
		return readExactly(rc, want)
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readExactly(zr, want)
	case compressionPackBits:
		return unpackBits(raw, want)
	}

	return nil, fmt.Errorf("compression %d is not supported", p.compression)
}

func readExactly(r io.Reader, want int) ([]byte, error) {
	buf := make([]byte, want)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return buf, nil
}

// unpackBits decodes Apple PackBits run-length encoding.
func unpackBits(src []byte, want int) ([]byte, error) {
	out := make([]byte, 0, want)
	for i := 0; i < len(src) && len(out) < want; {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(src) {
				return nil, fmt.Errorf("packbits literal run overruns input")
			}
			out = append(out, src[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(src) {
				return nil, fmt.Errorf("packbits repeat run overruns input")
			}
			for j := 0; j < 1-n; j++ {
				out = append(out, src[i])
			}
			i++
		}
	}
	if len(out) < want {
		return nil, fmt.Errorf("packbits produced %d bytes, need %d", len(out), want)
	}
	return out[:want], nil
}

// undoPredictor reverses horizontal differencing in place. Samples are still
// in file byte order here.
func undoPredictor(p *page, order binary.ByteOrder, buf []byte, width, rows, bps int) error {
	switch p.predictor {
	case 1:
		return nil
	case 2:
	default:
		return fmt.Errorf("predictor %d is not supported", p.predictor)
	}

	spp := p.samplesPerPixel
	rowBytes := width * spp * bps
	for r := 0; r < rows; r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		for i := spp; i < width*spp; i++ {
			cur, prev := row[i*bps:], row[(i-spp)*bps:]
			switch bps {
			case 1:
				cur[0] += prev[0]
			case 2:
				order.PutUint16(cur, order.Uint16(cur)+order.Uint16(prev))
			case 4:
				order.PutUint32(cur, order.Uint32(cur)+order.Uint32(prev))
			case 8:
				order.PutUint64(cur, order.Uint64(cur)+order.Uint64(prev))
			}
		}
	}

	return nil
}

func swapBytes(buf []byte, size int) {
	for i := 0; i+size <= len(buf); i += size {
		for a, b := i, i+size-1; a < b; a, b = a+1, b-1 {
			buf[a], buf[b] = buf[b], buf[a]
		}
	}
}
