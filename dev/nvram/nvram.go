// Package nvram emulates the machine's byte-addressed non-volatile
// memory with pluggable backing storage.
package nvram

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Size is the non-volatile memory capacity in bytes.
const Size = 0x2000

// ErrStorageTooSmall is returned when the backing storage can't hold
// the full non-volatile address space.
var ErrStorageTooSmall = errors.New("nvram: storage is smaller than the address space")

// Storage is the basic interface to the backing storage. It is
// read-only: to enable writes, storage types should also implement
// io.WriterAt.
type Storage interface {
	io.ReaderAt

	// Size returns the storage size in bytes.
	Size() (int64, error)
}

// MemStorage is read-write storage backed by a byte slice.
type MemStorage struct {
	Bytes []byte
}

// FileStorage is read-write storage backed by a file.
type FileStorage struct {
	File *os.File
}

// NVRAM is the non-volatile memory device.
type NVRAM struct {
	storage  Storage
	writerAt io.WriterAt
}

// New returns a device reading and writing through storage. A nil
// storage gets a fresh in-memory buffer. Storage smaller than the
// address space is rejected; read-only storage is accepted, with
// writes dropped.
func New(storage Storage) (*NVRAM, error) {
	if storage == nil {
		storage = &MemStorage{Bytes: make([]byte, Size)}
	}

	sz, err := storage.Size()
	if err != nil {
		return nil, fmt.Errorf("nvram: checking storage size: %w", err)
	}

	if sz < Size {
		return nil, fmt.Errorf("%w: %d < %d", ErrStorageTooSmall, sz, Size)
	}

	nv := &NVRAM{storage: storage}
	nv.writerAt, _ = storage.(io.WriterAt)

	return nv, nil
}

// Load reads the byte at addr. Out-of-range reads return 0.
func (nv *NVRAM) Load(addr uint32) uint8 {
	if addr >= Size {
		slog.Warn("nvram: out-of-range read", "addr", fmt.Sprintf("%#x", addr))
		return 0
	}

	var b [1]byte
	if _, err := nv.storage.ReadAt(b[:], int64(addr)); err != nil {
		slog.Error("nvram: read failed", "addr", fmt.Sprintf("%#x", addr), "err", err)
		return 0
	}

	return b[0]
}

// Store writes the byte at addr. Out-of-range writes and writes to
// read-only storage are dropped.
func (nv *NVRAM) Store(addr uint32, value uint8) {
	if addr >= Size {
		slog.Warn("nvram: out-of-range write", "addr", fmt.Sprintf("%#x", addr))
		return
	}

	if nv.writerAt == nil {
		slog.Warn("nvram: write to read-only storage", "addr", fmt.Sprintf("%#x", addr))
		return
	}

	if _, err := nv.writerAt.WriteAt([]byte{value}, int64(addr)); err != nil {
		slog.Error("nvram: write failed", "addr", fmt.Sprintf("%#x", addr), "err", err)
	}
}

// ReadAt copies from the backing slice at off into p.
func (ms *MemStorage) ReadAt(p []byte, off int64) (n int, err error) {
	return copy(p, ms.Bytes[off:]), nil
}

// Size returns the size of the backing slice in bytes.
func (ms *MemStorage) Size() (int64, error) {
	return int64(len(ms.Bytes)), nil
}

// WriteAt copies p into the backing slice at off.
func (ms *MemStorage) WriteAt(p []byte, off int64) (n int, err error) {
	return copy(ms.Bytes[off:], p), nil
}

// ReadAt reads from the backing file.
func (fs *FileStorage) ReadAt(p []byte, off int64) (n int, err error) {
	return fs.File.ReadAt(p, off)
}

// Size stats the backing file and returns its size in bytes.
func (fs *FileStorage) Size() (int64, error) {
	info, err := fs.File.Stat()
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// WriteAt writes to the backing file.
func (fs *FileStorage) WriteAt(p []byte, off int64) (n int, err error) {
	return fs.File.WriteAt(p, off)
}
