// Package mnist reads and writes the IDX files of the MNIST handwritten digit set. All header
// fields are big-endian 32 bit integers.
package mnist

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	imageMagic = 2051
	labelMagic = 2049

	// Side is the row and column count of an MNIST digit.
	Side = 28

	// MaxImageSize bounds rows*cols of a single image.
	MaxImageSize = 1 << 24

	readChunk = 1 << 16
)

var (
	ErrBadMagic  = errors.New("unexpected magic number")
	ErrBadHeader = errors.New("unexpected header")
)

// Set is a loaded image/label pair.
type Set struct {
	Images [][]byte
	Labels []byte
	Rows   int
	Cols   int
}

// Len returns the number of samples.
func (s *Set) Len() int { return len(s.Images) }

func readHeader(r io.Reader, fields []uint32) error {
	for i := range fields {
		if err := binary.Read(r, binary.BigEndian, &fields[i]); err != nil {
			return errors.Wrap(err, "read header")
		}
	}
	return nil
}

// ReadImages reads an image file. Each image is returned as rows*cols bytes in row-major order.
func ReadImages(r io.Reader) (images [][]byte, rows, cols int, err error) {
	hdr := make([]uint32, 4)
	if err := readHeader(r, hdr); err != nil {
		return nil, 0, 0, err
	}
	if hdr[0] != imageMagic {
		return nil, 0, 0, errors.Wrapf(ErrBadMagic, "image file: got %d, want %d", hdr[0], imageMagic)
	}
	count, rows, cols := int(hdr[1]), int(hdr[2]), int(hdr[3])
	if rows == 0 || cols == 0 || rows > MaxImageSize/cols {
		return nil, 0, 0, errors.Wrapf(ErrBadHeader, "image size %dx%d", rows, cols)
	}

	// The count is only trusted as far as the data backs it up.
	size := rows * cols
	images = make([][]byte, 0, min(count, readChunk))
	for i := 0; i < count; i++ {
		img := make([]byte, size)
		if _, err := io.ReadFull(r, img); err != nil {
			return nil, 0, 0, errors.Wrapf(ErrBadHeader, "image %d of %d: %v", i, count, err)
		}
		images = append(images, img)
	}
	return images, rows, cols, nil
}

// ReadLabels reads a label file.
func ReadLabels(r io.Reader) ([]byte, error) {
	hdr := make([]uint32, 2)
	if err := readHeader(r, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != labelMagic {
		return nil, errors.Wrapf(ErrBadMagic, "label file: got %d, want %d", hdr[0], labelMagic)
	}
	count := int64(hdr[1])
	labels, err := io.ReadAll(io.LimitReader(r, count))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d labels", count)
	}
	if int64(len(labels)) != count {
		return nil, errors.Wrapf(ErrBadHeader, "header promises %d labels, file holds %d", count, len(labels))
	}
	return labels, nil
}

// LoadSet reads an image file and its label file. When expect is positive the files must hold
// exactly expect samples of Side x Side pixels.
func LoadSet(imagePath, labelPath string, expect int) (*Set, error) {
	images, rows, cols, err := readImageFile(imagePath)
	if err != nil {
		return nil, err
	}
	labels, err := readLabelFile(labelPath)
	if err != nil {
		return nil, err
	}

	if len(labels) != len(images) {
		return nil, errors.Wrapf(ErrBadHeader, "%d labels for %d images", len(labels), len(images))
	}
	if expect > 0 && (len(images) != expect || rows != Side || cols != Side) {
		return nil, errors.Wrapf(ErrBadHeader, "got %d images of %dx%d, want %d of %dx%d", len(images), rows, cols, expect, Side, Side)
	}
	return &Set{Images: images, Labels: labels, Rows: rows, Cols: cols}, nil
}

func readImageFile(path string) ([][]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "open image file")
	}
	defer f.Close()
	images, rows, cols, err := ReadImages(bufio.NewReader(f))
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, path)
	}
	return images, rows, cols, nil
}

func readLabelFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open label file")
	}
	defer f.Close()
	labels, err := ReadLabels(bufio.NewReader(f))
	return labels, errors.Wrap(err, path)
}

// WriteImages writes images in IDX format. Every image must hold rows*cols bytes.
func WriteImages(w io.Writer, images [][]byte, rows, cols int) error {
	for i, img := range images {
		if len(img) != rows*cols {
			return errors.Wrapf(ErrBadHeader, "image %d has %d bytes, want %d", i, len(img), rows*cols)
		}
	}
	hdr := []uint32{imageMagic, uint32(len(images)), uint32(rows), uint32(cols)}
	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, img := range images {
		if _, err := w.Write(img); err != nil {
			return errors.Wrap(err, "write image")
		}
	}
	return nil
}

// WriteLabels writes labels in IDX format.
func WriteLabels(w io.Writer, labels []byte) error {
	if err := binary.Write(w, binary.BigEndian, []uint32{labelMagic, uint32(len(labels))}); err != nil {
		return errors.Wrap(err, "write header")
	}
	_, err := w.Write(labels)
	return errors.Wrap(err, "write labels")
}
