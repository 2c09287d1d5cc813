package ometiff

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func uint16Array(shape ...int) *PixelArray {
	a := &PixelArray{Shape: shape, DType: Uint16}
	a.Data = make([]byte, a.Len()*2)
	for i := 0; i < a.Len(); i++ {
		binary.LittleEndian.PutUint16(a.Data[2*i:], uint16(i*7+1))
	}
	return a
}

func omeDescription(order string, sizeZ, sizeC, sizeT, sizeY, sizeX int, names ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<OME xmlns="http://www.openmicroscopy.org/Schemas/OME/2016-06">`)
	fmt.Fprintf(&b, `<Image ID="Image:0" Name="test"><Pixels ID="Pixels:0" DimensionOrder="%s" Type="uint16" SizeX="%d" SizeY="%d" SizeZ="%d" SizeC="%d" SizeT="%d">`,
		order, sizeX, sizeY, sizeZ, sizeC, sizeT)
	for i, n := range names {
		fmt.Fprintf(&b, `<Channel ID="Channel:0:%d" Name="%s" SamplesPerPixel="1"/>`, i, n)
	}
	b.WriteString(`</Pixels></Image></OME>`)
	return b.String()
}

func encodeToReader(t *testing.T, a *PixelArray, opt *EncodeOptions) *Reader {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, a, opt))

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return r
}

func TestEncodeRoundTripShapeDescription(t *testing.T) {
	a := uint16Array(2, 3, 4, 5)
	r := encodeToReader(t, a, nil)

	assert.Equal(t, 6, r.NumPages())

	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, got.Shape)
	assert.Equal(t, Uint16, got.DType)
	assert.Equal(t, a.Data, got.Data)
}

func TestEncodeRoundTripBigTIFF(t *testing.T) {
	a := &PixelArray{Shape: []int{3, 2, 2}, DType: Float32, Data: make([]byte, 48)}
	for i := range a.Data {
		a.Data[i] = byte(i)
	}

	r := encodeToReader(t, a, &EncodeOptions{BigTIFF: true})
	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 2}, got.Shape)
	assert.Equal(t, Float32, got.DType)
	assert.Equal(t, a.Data, got.Data)
}

func TestReadArrayUsesOMELayout(t *testing.T) {
	a := uint16Array(3, 4, 5)
	desc := omeDescription("XYZCT", 1, 3, 1, 4, 5, "DAPI", "CD3", "CD20")
	r := encodeToReader(t, a, &EncodeOptions{Description: desc})

	names, err := r.ChannelNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"DAPI", "CD3", "CD20"}, names)

	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 1, 4, 5}, got.Shape)
	assert.Equal(t, "TCZYX", got.Axes)

	sq := got.Squeeze()
	assert.Equal(t, []int{3, 4, 5}, sq.Shape)
	assert.Equal(t, "CYX", sq.Axes)
	assert.Equal(t, a.Data, sq.Data)
}

func TestReadArrayDimensionOrderXYCZT(t *testing.T) {
	a := uint16Array(2, 3, 2, 2)
	desc := omeDescription("XYCZT", 2, 3, 1, 2, 2, "a", "b", "c")
	r := encodeToReader(t, a, &EncodeOptions{Description: desc})

	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 2, 2}, got.Shape)
	assert.Equal(t, "TZCYX", got.Axes)
}

func TestReadArrayTooFewPages(t *testing.T) {
	a := uint16Array(2, 4, 5)
	desc := omeDescription("XYZCT", 1, 3, 1, 4, 5, "a", "b", "c")
	r := encodeToReader(t, a, &EncodeOptions{Description: desc})

	_, err := r.ReadArray()
	assert.Error(t, err)
}

func TestChannelNamesNotOME(t *testing.T) {
	r := encodeToReader(t, uint16Array(2, 2), nil)

	_, err := r.ChannelNames()
	assert.True(t, errors.Is(err, ErrNotOME))

	r = encodeToReader(t, uint16Array(2, 2), &EncodeOptions{Description: "<foo/>"})
	_, err = r.ChannelNames()
	assert.True(t, errors.Is(err, ErrNotOME))
}

func TestParseOMEXMLSkipsUnnamedChannels(t *testing.T) {
	doc := `<OME xmlns="http://www.openmicroscopy.org/Schemas/OME/2016-06"><Image><Pixels>` +
		`<Channel Name="cells"/><Channel ID="x"/><Channel Name=""/><Channel Name="nuclei"/>` +
		`</Pixels></Image><Image><Pixels><Channel Name="second"/></Pixels></Image></OME>`

	m, err := ParseOMEXML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"cells", "", "nuclei", "second"}, m.ChannelNames())
}

func TestParseOMEXMLLatin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><OME><Image><Pixels><Channel Name=\"\xb5m\"/></Pixels></Image></OME>"

	m, err := ParseOMEXML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"µm"}, m.ChannelNames())
}

func TestEncodePlaneUint16ViaDeflate(t *testing.T) {
	a := uint16Array(3, 4)

	var buf bytes.Buffer
	require.NoError(t, EncodePlane(&buf, a))

	img, err := tiff.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	gray, ok := img.(*image.Gray16)
	require.True(t, ok)
	assert.Equal(t, uint16(8), gray.Gray16At(1, 0).Y)

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got.Shape)
	assert.Equal(t, a.Data, got.Data)
}

func TestEncodePlaneInt32FallsBack(t *testing.T) {
	a := &PixelArray{Shape: []int{2, 2}, DType: Int32, Data: make([]byte, 16)}
	a.Data[4] = 9

	var buf bytes.Buffer
	require.NoError(t, EncodePlane(&buf, a))

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, Int32, got.DType)
	assert.Equal(t, a.Data, got.Data)

	assert.Error(t, EncodePlane(&buf, uint16Array(2, 2, 2)))
}

// bigEndianTIFF hand-assembles a 2x2 uint16 MM-ordered file with two strips.
func bigEndianTIFF(samples []uint16) []byte {
	var b bytes.Buffer
	be := binary.BigEndian
	w16 := func(v uint16) { binary.Write(&b, be, v) }
	w32 := func(v uint32) { binary.Write(&b, be, v) }

	b.WriteString("MM")
	w16(42)
	w32(16)
	for _, s := range samples {
		w16(s)
	}

	entries := [][4]uint32{
		{tagImageWidth, dtShort, 1, 2},
		{tagImageLength, dtShort, 1, 2},
		{tagBitsPerSample, dtShort, 1, 16},
		{tagStripOffsets, dtLong, 2, 0},
		{tagRowsPerStrip, dtShort, 1, 1},
		{tagStripByteCounts, dtLong, 2, 0},
	}
	extra := uint32(16 + 2 + 12*len(entries) + 4)
	w16(uint16(len(entries)))
	for _, e := range entries {
		w16(uint16(e[0]))
		w16(uint16(e[1]))
		w32(e[2])
		switch {
		case e[0] == tagStripOffsets:
			w32(extra)
		case e[0] == tagStripByteCounts:
			w32(extra + 8)
		case e[1] == dtShort:
			w16(uint16(e[3]))
			w16(0)
		default:
			w32(e[3])
		}
	}
	w32(0)
	w32(8)
	w32(12)
	w32(4)
	w32(4)

	return b.Bytes()
}

func TestReadBigEndianStrips(t *testing.T) {
	raw := bigEndianTIFF([]uint16{1, 2, 0x0300, 0xfffe})

	r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, got.Shape)
	assert.Equal(t, []byte{1, 0, 2, 0, 0, 3, 0xfe, 0xff}, got.Data)
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte("GIF89a.."), []byte("II\x2b\x00\x04\x00\x00\x00")} {
		_, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
		assert.Error(t, err)
	}
}

func TestUnpackBits(t *testing.T) {
	src := []byte{0xfe, 0xaa, 0x02, 0x80, 0x00, 0x2a, 0x80}
	got, err := unpackBits(src, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xaa, 0xaa, 0x80, 0x00, 0x2a}, got)

	_, err = unpackBits([]byte{0x05, 0x01}, 6)
	assert.Error(t, err)
}

func TestUndoPredictor16(t *testing.T) {
	p := &page{predictor: 2, samplesPerPixel: 1}
	buf := make([]byte, 8)
	for i, v := range []uint16{10, 1, 1, 0xffff} {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}

	require.NoError(t, undoPredictor(p, binary.LittleEndian, buf, 4, 1, 2))

	var got []uint16
	for i := 0; i < 4; i++ {
		got = append(got, binary.LittleEndian.Uint16(buf[2*i:]))
	}
	assert.Equal(t, []uint16{10, 11, 12, 11}, got)

	p.predictor = 3
	assert.Error(t, undoPredictor(p, binary.LittleEndian, buf, 4, 1, 2))
}

func TestSqueezeAndIndex(t *testing.T) {
	a := uint16Array(1, 3, 1, 2, 2)
	a.Axes = "TCZYX"

	sq := a.Squeeze()
	require.Equal(t, []int{3, 2, 2}, sq.Shape)
	assert.Equal(t, "CYX", sq.Axes)
	assert.Equal(t, 3, sq.NDim())

	plane, err := sq.Index(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, plane.Shape)
	assert.Equal(t, "YX", plane.Axes)
	assert.Equal(t, a.Data[8:16], plane.Data)

	_, err = sq.Index(3)
	assert.Error(t, err)
	_, err = sq.Index(-1)
	assert.Error(t, err)
}

type testField struct {
	tag  uint16
	typ  uint16
	vals []uint32
}

// littleEndianTIFF assembles a classic II file holding data at offset 8 and a
// single IFD. Strip and tile offsets are given relative to data.
func littleEndianTIFF(data []byte, fields ...testField) []byte {
	le := binary.LittleEndian
	w16 := func(b *bytes.Buffer, v uint16) { binary.Write(b, le, v) }
	w32 := func(b *bytes.Buffer, v uint32) { binary.Write(b, le, v) }

	ifdOff := 8 + len(data) + len(data)%2
	extraOff := ifdOff + 2 + 12*len(fields) + 4

	var ifd, extra bytes.Buffer
	w16(&ifd, uint16(len(fields)))
	for _, f := range fields {
		var val bytes.Buffer
		for _, v := range f.vals {
			if f.tag == tagStripOffsets || f.tag == tagTileOffsets {
				v += 8
			}
			if f.typ == dtShort {
				w16(&val, uint16(v))
			} else {
				w32(&val, v)
			}
		}

		w16(&ifd, f.tag)
		w16(&ifd, f.typ)
		w32(&ifd, uint32(len(f.vals)))
		if val.Len() <= 4 {
			field := make([]byte, 4)
			copy(field, val.Bytes())
			ifd.Write(field)
		} else {
			w32(&ifd, uint32(extraOff+extra.Len()))
			extra.Write(val.Bytes())
		}
	}
	w32(&ifd, 0)

	var b bytes.Buffer
	b.WriteString("II")
	w16(&b, 42)
	w32(&b, uint32(ifdOff))
	b.Write(data)
	for b.Len() < ifdOff {
		b.WriteByte(0)
	}
	b.Write(ifd.Bytes())
	b.Write(extra.Bytes())

	return b.Bytes()
}

func readLittleEndianTIFF(t *testing.T, raw []byte) (*PixelArray, error) {
	t.Helper()

	r, err := NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	return r.ReadArray()
}

func TestReadTiled(t *testing.T) {
	// 3x2 uint8 image in 2x2 tiles; the right tile is padded.
	data := []byte{1, 2, 4, 5, 3, 0, 6, 0}
	raw := littleEndianTIFF(data,
		testField{tagImageWidth, dtShort, []uint32{3}},
		testField{tagImageLength, dtShort, []uint32{2}},
		testField{tagBitsPerSample, dtShort, []uint32{8}},
		testField{tagTileWidth, dtShort, []uint32{2}},
		testField{tagTileLength, dtShort, []uint32{2}},
		testField{tagTileOffsets, dtLong, []uint32{0, 4}},
		testField{tagTileByteCounts, dtLong, []uint32{4, 4}},
	)

	got, err := readLittleEndianTIFF(t, raw)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, got.Shape)
	assert.Equal(t, Uint8, got.DType)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got.Data)
}

func TestReadLZWStrips(t *testing.T) {
	plain := []byte{7, 7, 7, 7, 1, 2, 3, 4, 7, 7, 7, 7}

	var data bytes.Buffer
	w := lzw.NewWriter(&data, lzw.MSB, 8)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw := littleEndianTIFF(data.Bytes(),
		testField{tagImageWidth, dtShort, []uint32{4}},
		testField{tagImageLength, dtShort, []uint32{3}},
		testField{tagBitsPerSample, dtShort, []uint32{8}},
		testField{tagCompression, dtShort, []uint32{compressionLZW}},
		testField{tagStripOffsets, dtLong, []uint32{0}},
		testField{tagStripByteCounts, dtLong, []uint32{uint32(data.Len())}},
	)

	got, err := readLittleEndianTIFF(t, raw)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got.Shape)
	assert.Equal(t, plain, got.Data)
}

func TestReadRejectsOversizedPlane(t *testing.T) {
	raw := littleEndianTIFF([]byte{0, 0},
		testField{tagImageWidth, dtLong, []uint32{1 << 30}},
		testField{tagImageLength, dtLong, []uint32{1 << 30}},
		testField{tagBitsPerSample, dtShort, []uint32{16}},
		testField{tagStripOffsets, dtLong, []uint32{0}},
		testField{tagStripByteCounts, dtLong, []uint32{2}},
	)

	_, err := readLittleEndianTIFF(t, raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bytes per plane")

	raw = littleEndianTIFF([]byte{0, 0},
		testField{tagImageWidth, dtLong, []uint32{1 << 31}},
		testField{tagImageLength, dtLong, []uint32{1 << 31}},
		testField{tagBitsPerSample, dtShort, []uint32{16}},
		testField{tagStripOffsets, dtLong, []uint32{0}},
		testField{tagStripByteCounts, dtLong, []uint32{2}},
	)
	_, err = NewReader(bytes.NewReader(raw), int64(len(raw)))
	assert.Error(t, err)
}

func TestReadRejectsTruncatedUncompressedPlane(t *testing.T) {
	raw := littleEndianTIFF([]byte{1, 2, 3, 4},
		testField{tagImageWidth, dtShort, []uint32{1000}},
		testField{tagImageLength, dtShort, []uint32{1000}},
		testField{tagBitsPerSample, dtShort, []uint32{8}},
		testField{tagStripOffsets, dtLong, []uint32{0}},
		testField{tagStripByteCounts, dtLong, []uint32{4}},
	)

	_, err := readLittleEndianTIFF(t, raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uncompressed page needs")
}

func TestReadArrayChecksOMEPixelType(t *testing.T) {
	a := &PixelArray{Shape: []int{4, 5}, DType: Float32, Data: make([]byte, 80)}
	desc := omeDescription("XYZCT", 1, 1, 1, 4, 5, "DAPI")
	r := encodeToReader(t, a, &EncodeOptions{Description: desc})

	_, err := r.ReadArray()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float32")

	desc = strings.Replace(desc, `Type="uint16"`, `Type="float"`, 1)
	r = encodeToReader(t, a, &EncodeOptions{Description: desc})
	got, err := r.ReadArray()
	require.NoError(t, err)
	assert.Equal(t, Float32, got.DType)
}
