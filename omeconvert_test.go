package omeconvert

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "hello\n")
		return err
	}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))

	boom := errors.New("boom")
	err = WriteFileAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got), "a failed write keeps the old file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o600))

	dst := filepath.Join(dir, "dst.csv")
	require.NoError(t, CopyFileAtomic(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))

	assert.Error(t, CopyFileAtomic(filepath.Join(dir, "missing"), dst))
}

func TestDetermineDelimiter(t *testing.T) {
	tests := map[string]rune{
		"a,b,c\n1,2,3\n4,5,6\n":       ',',
		"a\tb\tc\n1\t2\t3\n4\t5\t6\n": '\t',
		"a;b;c\n1;2;3\n4;5;6\n":       ';',
		"a|b|c\n1|2|3\n4|5|6\n":       '|',
		"single\ncolumn\n":            ',',
		"":                            ',',
	}
	for in, want := range tests {
		assert.Equal(t, string(want), string(DetermineDelimiter([]byte(in))), "%q", in)
	}
}

func TestDetectDataType(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("x"))
	zw.Close()

	var zl bytes.Buffer
	zlw := zlib.NewWriter(&zl)
	zlw.Write([]byte("x"))
	zlw.Close()

	tests := []struct {
		in   []byte
		want DataType
	}{
		{gz.Bytes(), DataTypeGzip},
		{zl.Bytes(), DataTypeZlib},
		{[]byte{0x50, 0x4b, 0x03, 0x04, 0, 0}, DataTypeZip},
		{[]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, DataTypeXZ},
		{[]byte("BZh91AY"), DataTypeBZip2},
		{[]byte("xylophone"), DataTypeNoCompression},
		{[]byte(",a\n1,b\n"), DataTypeNoCompression},
		{nil, DataTypeNoCompression},
	}
	for _, tt := range tests {
		got, err := DetectDataType(bufio.NewReader(bytes.NewReader(tt.in)))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%x", tt.in)
	}
}

func TestOpenMaybeCompressed(t *testing.T) {
	const content = ",RIBCA_CellType\n1,T cell\n"
	dir := t.TempDir()

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var zl bytes.Buffer
	zlw := zlib.NewWriter(&zl)
	_, err = zlw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zlw.Close())

	for name, data := range map[string][]byte{
		"plain": []byte(content),
		"gzip":  gz.Bytes(),
		"zlib":  zl.Bytes(),
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		rc, err := OpenMaybeCompressed(path)
		require.NoError(t, err, name)
		got, err := io.ReadAll(rc)
		require.NoError(t, err, name)
		require.NoError(t, rc.Close(), name)
		assert.Equal(t, content, string(got), name)
	}

	_, err = OpenMaybeCompressed(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSplitGoogleStoragePath(t *testing.T) {
	bucket, object, err := SplitGoogleStoragePath("gs://my-bucket/run1/expr/a.ome.tiff")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "run1/expr/a.ome.tiff", object)

	for _, bad := range []string{"gs://bucket", "gs://bucket/", "gs:///object"} {
		_, _, err := SplitGoogleStoragePath(bad)
		assert.Error(t, err, bad)
	}

	assert.True(t, IsGoogleStoragePath("gs://b/o"))
	assert.False(t, IsGoogleStoragePath("/data/gs://b/o"))
}

func TestMaybeOpenFromGoogleStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.tiff")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	f, size, err := MaybeOpenFromGoogleStorage(path, nil)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(10), size)

	buf := make([]byte, 3)
	_, err = f.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))

	_, _, err = MaybeOpenFromGoogleStorage("gs://bucket/img.tiff", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "client"))
}
