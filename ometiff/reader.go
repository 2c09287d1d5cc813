// Package ometiff reads and writes the multi-page TIFF files produced by
// microscopy instruments, with just enough OME-XML support to recover channel
// names and the dimension layout of the pixel planes.
//
// Strip and tile layouts are supported, uncompressed or compressed with LZW,
// Deflate or PackBits, in classic or BigTIFF containers of either byte order.
package ometiff

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/carbocation/pfx"
)

// Reader gives access to the pages of a TIFF file.
type Reader struct {
	ifd   *ifdReader
	size  int64
	pages []*page
}

// NewReader parses the header and the full IFD chain of the TIFF held by r.
// Pixel data is only read on demand.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	head := make([]byte, 16)
	n, err := r.ReadAt(head, 0)
	if n < 8 {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, pfx.Err(fmt.Errorf("reading TIFF header: %w", err))
	}

	d := &ifdReader{r: r}
	switch string(head[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF file: bad byte order mark %q", head[:2])
	}

	var first uint64
	switch d.order.Uint16(head[2:4]) {
	case 42:
		first = uint64(d.order.Uint32(head[4:8]))
	case 43:
		if n < 16 || d.order.Uint16(head[4:6]) != 8 {
			return nil, fmt.Errorf("malformed BigTIFF header")
		}
		d.big = true
		first = d.order.Uint64(head[8:16])
	default:
		return nil, fmt.Errorf("not a TIFF file: bad magic number %d", d.order.Uint16(head[2:4]))
	}

	out := &Reader{ifd: d, size: size}

	seen := make(map[uint64]struct{})
	for off := first; off != 0; {
		if _, dup := seen[off]; dup {
			return nil, fmt.Errorf("IFD chain loops back to offset %d", off)
		}
		if len(seen) >= maxPages {
			return nil, fmt.Errorf("more than %d IFDs", maxPages)
		}
		if size > 0 && int64(off) >= size {
			return nil, fmt.Errorf("IFD offset %d is beyond the end of the file (%d bytes)", off, size)
		}
		seen[off] = struct{}{}

		p, next, err := d.read(off)
		if err != nil {
			return nil, err
		}
		out.pages = append(out.pages, p)
		off = next
	}

	if len(out.pages) == 0 {
		return nil, fmt.Errorf("TIFF file has no images")
	}

	return out, nil
}

// NumPages is the number of IFDs in the main chain.
func (r *Reader) NumPages() int {
	return len(r.pages)
}

// Description is the ImageDescription of the first page.
func (r *Reader) Description() string {
	return r.pages[0].description
}

// Metadata parses the OME-XML held in the first page's description.
func (r *Reader) Metadata() (*Metadata, error) {
	desc := r.Description()
	if !looksLikeXML(desc) {
		return nil, ErrNotOME
	}
	return ParseOMEXML(strings.NewReader(desc))
}

// ChannelNames returns the channel names recorded in the OME-XML, in the order
// of the channel axis.
func (r *Reader) ChannelNames() ([]string, error) {
	m, err := r.Metadata()
	if err != nil {
		return nil, err
	}
	return m.ChannelNames(), nil
}

// ReadPage decodes page i into little-endian samples, row-major with samples
// of a pixel adjacent.
func (r *Reader) ReadPage(i int) ([]byte, DType, error) {
	if i < 0 || i >= len(r.pages) {
		return nil, Invalid, fmt.Errorf("page %d out of range (%d pages)", i, len(r.pages))
	}

	p := r.pages[i]
	data, dt, err := r.decodePage(p)
	if err != nil {
		return nil, Invalid, fmt.Errorf("page %d: %w", i, err)
	}

	return data, dt, nil
}

// ReadArray reads the first image series into a PixelArray. The shape comes
// from the OME-XML Pixels element when present (axes in reverse
// DimensionOrder, e.g. TCZYX for XYZCT), then from a {"shape": [...]}
// description, and otherwise is (pages, Y, X).
func (r *Reader) ReadArray() (*PixelArray, error) {
	shape, axes, nPages, err := r.layout()
	if err != nil {
		return nil, err
	}
	if nPages > len(r.pages) {
		return nil, fmt.Errorf("image layout %v needs %d pages but the file has %d", shape, nPages, len(r.pages))
	}

	first := r.pages[0]
	var out *PixelArray
	for i := 0; i < nPages; i++ {
		p := r.pages[i]
		if p.width != first.width || p.height != first.height || p.samplesPerPixel != first.samplesPerPixel {
			return nil, fmt.Errorf("page %d is %dx%dx%d, page 0 is %dx%dx%d", i,
				p.width, p.height, p.samplesPerPixel, first.width, first.height, first.samplesPerPixel)
		}

		data, dt, err := r.ReadPage(i)
		if err != nil {
			return nil, err
		}

		if out == nil {
			if _, ok := mulBounded(maxArrayBytes, nPages, len(data)); !ok {
				return nil, fmt.Errorf("%d pages of %d bytes exceed %d bytes", nPages, len(data), maxArrayBytes)
			}
			out = &PixelArray{
				Shape: shape,
				Axes:  axes,
				DType: dt,
				Data:  make([]byte, 0, nPages*len(data)),
			}
		} else if dt != out.DType {
			return nil, fmt.Errorf("page %d has dtype %v, page 0 has %v", i, dt, out.DType)
		}

		out.Data = append(out.Data, data...)
	}

	if err := out.validate(); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Reader) layout() (shape []int, axes string, nPages int, err error) {
	first := r.pages[0]
	spp := first.samplesPerPixel

	withSamples := func(shape []int, axes string) ([]int, string) {
		if spp > 1 {
			return append(shape, spp), axes + "S"
		}
		return shape, axes
	}

	if meta, merr := r.Metadata(); merr == nil && len(meta.Images) > 0 {
		px := meta.Images[0].Pixels
		if px.SizeX != first.width || px.SizeY != first.height {
			return nil, "", 0, fmt.Errorf("OME-XML says %dx%d but the first page is %dx%d",
				px.SizeX, px.SizeY, first.width, first.height)
		}

		if px.Type != "" {
			omeType, terr := DTypeFromOME(px.Type)
			if terr != nil {
				return nil, "", 0, terr
			}
			pageType, terr := dtypeFor(first.bitsPerSample, first.sampleFormat)
			if terr != nil {
				return nil, "", 0, terr
			}
			if omeType != pageType {
				return nil, "", 0, fmt.Errorf("OME-XML says %v pixels but the first page holds %v", omeType, pageType)
			}
		}

		order := strings.ToUpper(px.DimensionOrder)
		if order == "" {
			order = "XYZCT"
		}
		if len(order) != 5 || !strings.HasPrefix(order, "XY") {
			return nil, "", 0, fmt.Errorf("unsupported DimensionOrder %q", px.DimensionOrder)
		}

		sizes := map[byte]int{'Z': px.SizeZ, 'C': px.SizeC, 'T': px.SizeT}
		if spp > 1 && sizes['C']%spp == 0 {
			sizes['C'] /= spp
		}

		nPages = 1
		for i := 4; i >= 2; i-- {
			n, ok := sizes[order[i]]
			if !ok {
				return nil, "", 0, fmt.Errorf("unsupported DimensionOrder %q", px.DimensionOrder)
			}
			if n < 1 {
				n = 1
			}
			shape = append(shape, n)
			axes += string(order[i])
			nPages *= n
		}

		shape, axes = withSamples(append(shape, first.height, first.width), axes+"YX")
		return shape, axes, nPages, nil
	} else if merr != nil && merr != ErrNotOME {
		return nil, "", 0, merr
	}

	if s := describedShape(first.description); s != nil {
		plane := first.height * first.width * spp
		if total := product(s); total%plane == 0 && total/plane <= len(r.pages) {
			return s, "", total / plane, nil
		}
	}

	if len(r.pages) == 1 {
		shape, axes = withSamples([]int{first.height, first.width}, "YX")
		return shape, axes, 1, nil
	}

	shape, axes = withSamples([]int{len(r.pages), first.height, first.width}, "IYX")
	return shape, axes, len(r.pages), nil
}

// describedShape understands the {"shape": [...]} descriptions written by
// Encode and by tifffile.
func describedShape(desc string) []int {
	desc = strings.TrimSpace(desc)
	if !strings.HasPrefix(desc, "{") {
		return nil
	}

	var v struct {
		Shape []int `json:"shape"`
	}
	if err := json.NewDecoder(bytes.NewReader([]byte(desc))).Decode(&v); err != nil || len(v.Shape) < 2 {
		return nil
	}
	for _, n := range v.Shape {
		if n < 1 {
			return nil
		}
	}

	return v.Shape
}
