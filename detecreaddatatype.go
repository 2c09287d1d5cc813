package omeconvert

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"os"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
	DataTypeZlib
)

var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType inspects the leading bytes of a stream without consuming them.
// Byte code signatures from https://stackoverflow.com/a/19127748/199475
func DetectDataType(r *bufio.Reader) (DataType, error) {
	buff, err := r.Peek(6)
	if err != nil && err != io.EOF {
		return DataTypeInvalid, err
	}

	// Match known signatures
Outer:
	for dt, sig := range byteCodeSigs {
		if len(buff) < len(sig) {
			continue
		}
		for position := range sig {
			if buff[position] != sig[position] {
				continue Outer
			}
		}
		return dt, nil
	}

	// zlib has no magic number, only a header checksum. Accept the usual
	// compression levels so that text starting with 'x' is not mistaken for it.
	if len(buff) >= 2 && buff[0] == 0x78 {
		switch buff[1] {
		case 0x01, 0x5e, 0x9c, 0xda:
			return DataTypeZlib, nil
		}
	}

	return DataTypeNoCompression, nil
}

// OpenMaybeCompressed opens path and transparently decompresses it if it is
// gzip, zip (first entry), xz, zlib or bzip2 compressed. Closing the result
// closes the underlying file.
func OpenMaybeCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	rc, err := maybeDecompress(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return rc, nil
}

func maybeDecompress(f *os.File) (io.ReadCloser, error) {
	br := bufio.NewReader(f)

	dt, err := DetectDataType(br)
	if err != nil {
		return nil, err
	}

	switch dt {
	case DataTypeGzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: gzr, closers: []io.Closer{gzr, f}}, nil
	case DataTypeZip:
		zr := zipstream.NewReader(br)
		if _, err := zr.Next(); err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{f}}, nil
	case DataTypeBZip2:
		return &stackedCloser{Reader: bzip2.NewReader(br), closers: []io.Closer{f}}, nil
	case DataTypeXZ:
		reader, err := xz.NewReader(br, 0)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: reader, closers: []io.Closer{f}}, nil
	case DataTypeZ:
		return nil, fmt.Errorf("compress(1) .Z streams are not supported")
	case DataTypeZlib:
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	}

	return &stackedCloser{Reader: br, closers: []io.Closer{f}}, nil
}

// stackedCloser closes a decompressor and then the file beneath it.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *stackedCloser) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
