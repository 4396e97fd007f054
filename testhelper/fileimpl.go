// Package testhelper provides fakes used by the hide/detect test
// suites to stand in for a real EXT4 image without touching disk.
package testhelper

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/RajeckMassa/DHEXT4/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements backend.Storage over caller-supplied read/write
// closures, letting the test suite build a synthetic image by hand.
type FileImpl struct {
	Reader reader
	Writer writer
}

func (f *FileImpl) Stat() (fs.FileInfo, error) {
	return nil, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt reads at a particular offset.
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt writes at a particular offset.
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek is unsupported; every caller in this module uses ReadAt/WriteAt.
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}

// Sys has no OS-backed file to return.
func (f *FileImpl) Sys() (*os.File, error) {
	return nil, fmt.Errorf("FileImpl has no backing os.File")
}

// Writable returns itself; FileImpl is always write-capable.
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	return f, nil
}

var (
	_ backend.Storage      = (*FileImpl)(nil)
	_ backend.WritableFile = (*FileImpl)(nil)
)

// MemImage is a fixed-size in-memory image backing a FileImpl, used to
// build small synthetic EXT4 layouts in tests. Writes past its end fail.
type MemImage struct {
	Bytes []byte
}

// NewMemImage allocates a zero-filled image of the given size.
func NewMemImage(size int) *MemImage {
	return &MemImage{Bytes: make([]byte, size)}
}

// File returns a FileImpl reading from and writing to this image.
func (m *MemImage) File() *FileImpl {
	return &FileImpl{
		Reader: func(b []byte, offset int64) (int, error) {
			if offset < 0 || int(offset) > len(m.Bytes) {
				return 0, fmt.Errorf("offset %d out of range", offset)
			}
			n := copy(b, m.Bytes[offset:])
			return n, nil
		},
		Writer: func(b []byte, offset int64) (int, error) {
			end := int(offset) + len(b)
			if offset < 0 || end > len(m.Bytes) {
				return 0, fmt.Errorf("write at %d..%d out of range", offset, end)
			}
			n := copy(m.Bytes[offset:], b)
			return n, nil
		},
	}
}
