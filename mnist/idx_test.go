package mnist

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSet(t *testing.T, dir string, images [][]byte, labels []byte, rows, cols int) (string, string) {
	t.Helper()
	var img, lbl bytes.Buffer
	require.NoError(t, WriteImages(&img, images, rows, cols))
	require.NoError(t, WriteLabels(&lbl, labels))

	imgPath := filepath.Join(dir, "images.idx3-ubyte")
	lblPath := filepath.Join(dir, "labels.idx1-ubyte")
	require.NoError(t, os.WriteFile(imgPath, img.Bytes(), 0644))
	require.NoError(t, os.WriteFile(lblPath, lbl.Bytes(), 0644))
	return imgPath, lblPath
}

func TestImageHeaderIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteImages(&buf, [][]byte{{1, 2, 3, 4, 5, 6}}, 2, 3))

	b := buf.Bytes()
	assert.Equal(t, []byte{0, 0, 0x08, 0x03}, b[0:4])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(b[12:16]))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b[16:])
}

func TestReadImages(t *testing.T) {
	images := [][]byte{{0, 10, 20, 30}, {255, 128, 1, 2}, {9, 9, 9, 9}}
	var buf bytes.Buffer
	require.NoError(t, WriteImages(&buf, images, 2, 2))

	got, rows, cols, err := ReadImages(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, images, got)
}

func TestReadErrors(t *testing.T) {
	var lbl bytes.Buffer
	require.NoError(t, WriteLabels(&lbl, []byte{1, 2}))
	_, _, _, err := ReadImages(bytes.NewReader(lbl.Bytes()))
	assert.True(t, errors.Is(err, ErrBadMagic))

	var img bytes.Buffer
	require.NoError(t, WriteImages(&img, [][]byte{{1}}, 1, 1))
	_, err = ReadLabels(bytes.NewReader(img.Bytes()))
	assert.True(t, errors.Is(err, ErrBadMagic))

	truncated := img.Bytes()[:img.Len()-1]
	_, _, _, err = ReadImages(bytes.NewReader(truncated))
	assert.Error(t, err)

	_, _, _, err = ReadImages(bytes.NewReader([]byte{0, 0}))
	assert.Error(t, err)

	assert.True(t, errors.Is(WriteImages(&img, [][]byte{{1, 2}}, 1, 1), ErrBadHeader))
}

func TestLoadSet(t *testing.T) {
	images := [][]byte{{1, 2, 3}, {4, 5, 6}}
	imgPath, lblPath := writeSet(t, t.TempDir(), images, []byte{7, 8}, 1, 3)

	set, err := LoadSet(imgPath, lblPath, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, images, set.Images)
	assert.Equal(t, []byte{7, 8}, set.Labels)
	assert.Equal(t, 1, set.Rows)
	assert.Equal(t, 3, set.Cols)

	_, err = LoadSet(imgPath, lblPath, 2)
	assert.True(t, errors.Is(err, ErrBadHeader), "not 28x28")
}

func TestLoadSetStrict(t *testing.T) {
	images := [][]byte{make([]byte, Side*Side), make([]byte, Side*Side)}
	imgPath, lblPath := writeSet(t, t.TempDir(), images, []byte{0, 1}, Side, Side)

	_, err := LoadSet(imgPath, lblPath, 2)
	require.NoError(t, err)

	_, err = LoadSet(imgPath, lblPath, 3)
	assert.True(t, errors.Is(err, ErrBadHeader))
}

func TestLoadSetCountMismatch(t *testing.T) {
	imgPath, lblPath := writeSet(t, t.TempDir(), [][]byte{{1}, {2}}, []byte{0}, 1, 1)
	_, err := LoadSet(imgPath, lblPath, 0)
	assert.True(t, errors.Is(err, ErrBadHeader))

	_, err = LoadSet(filepath.Join(t.TempDir(), "missing"), lblPath, 0)
	assert.Error(t, err)
}

func header(fields ...uint32) []byte {
	b := make([]byte, 4*len(fields))
	for i, f := range fields {
		binary.BigEndian.PutUint32(b[4*i:], f)
	}
	return b
}

func TestReadCorruptHeaders(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"size overflows", header(imageMagic, 2, 0xFFFFFFFF, 0xFFFFFFFF)},
		{"image too large", header(imageMagic, 1, 1<<13, 1<<13)},
		{"count beyond data", append(header(imageMagic, 0xFFFFFFFF, 2, 2), 1, 2, 3, 4)},
		{"zero rows", header(imageMagic, 1, 0, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ReadImages(bytes.NewReader(tt.data))
			assert.True(t, errors.Is(err, ErrBadHeader), "got %v", err)
		})
	}

	_, err := ReadLabels(bytes.NewReader(append(header(labelMagic, 0xFFFFFFFF), 1, 2)))
	assert.True(t, errors.Is(err, ErrBadHeader), "got %v", err)
}
