package target

import (
	"context"
	"fmt"
	"os"
)

// Image is target memory backed by a byte slice, typically a RAM dump
// produced by the dump-memory command.
type Image struct {
	Base uint32
	Data []byte
}

// NewImage returns a zeroed Image of size bytes starting at base.
func NewImage(base uint32, size int) *Image {
	return &Image{Base: base, Data: make([]byte, size)}
}

// LoadImage reads a dump file that was taken starting at base.
func LoadImage(path string, base uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory image: %w", err)
	}
	return &Image{Base: base, Data: data}, nil
}

func (m *Image) span(addr uint32, n int) (int, error) {
	if n < 0 || addr < m.Base {
		return 0, &UnmappedError{Addr: addr, Size: n}
	}
	start := uint64(addr - m.Base)
	if start+uint64(n) > uint64(len(m.Data)) {
		return 0, &UnmappedError{Addr: addr, Size: n}
	}
	return int(start), nil
}

// ReadMemory implements Memory.
func (m *Image) ReadMemory(_ context.Context, addr uint32, n int) ([]byte, error) {
	start, err := m.span(addr, n)
	if err != nil {
		return nil, &ReadError{Addr: addr, Size: n, Err: err}
	}
	out := make([]byte, n)
	copy(out, m.Data[start:start+n])
	return out, nil
}

// WriteMemory copies data into the image.
func (m *Image) WriteMemory(_ context.Context, addr uint32, data []byte) error {
	start, err := m.span(addr, len(data))
	if err != nil {
		return err
	}
	copy(m.Data[start:], data)
	return nil
}

// PutWord stores a little-endian word. It panics outside the image and is
// meant for building fixtures.
func (m *Image) PutWord(addr uint32, v uint32) {
	start, err := m.span(addr, WordSize)
	if err != nil {
		panic(err)
	}
	m.Data[start] = byte(v)
	m.Data[start+1] = byte(v >> 8)
	m.Data[start+2] = byte(v >> 16)
	m.Data[start+3] = byte(v >> 24)
}

// PutByte stores one byte. Like PutWord it is for fixtures.
func (m *Image) PutByte(addr uint32, v byte) {
	start, err := m.span(addr, 1)
	if err != nil {
		panic(err)
	}
	m.Data[start] = v
}
