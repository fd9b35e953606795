package target

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/muurk/taskscope/internal/logging"
)

// WordSize is the size of a pointer on the target.
const WordSize = 4

// Field locates a scalar inside a structure.
type Field struct {
	Offset int `yaml:"offset"`
	Size   int `yaml:"size"`
}

// Word is a pointer-sized field at offset.
func Word(offset int) Field {
	return Field{Offset: offset, Size: WordSize}
}

// Offset applies a signed byte offset to addr with 32-bit wraparound.
func Offset(addr uint32, off int) uint32 {
	return addr + uint32(int32(off))
}

// Reader decodes typed values from target memory.
type Reader struct {
	mem   Memory
	order binary.ByteOrder
}

// NewReader returns a Reader over mem. A nil order means little-endian.
func NewReader(mem Memory, order binary.ByteOrder) *Reader {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Reader{mem: mem, order: order}
}

// Memory returns the underlying memory.
func (r *Reader) Memory() Memory {
	return r.mem
}

// Uint reads an unsigned integer of size 1, 2 or 4 bytes at addr.
func (r *Reader) Uint(ctx context.Context, addr uint32, size int) (uint32, error) {
	switch size {
	case 1, 2, 4:
	default:
		return 0, fmt.Errorf("unsupported field size %d", size)
	}

	buf, err := r.mem.ReadMemory(ctx, addr, size)
	if err != nil {
		var readErr *ReadError
		if errors.As(err, &readErr) {
			return 0, err
		}
		return 0, &ReadError{Addr: addr, Size: size, Err: err}
	}
	if len(buf) != size {
		return 0, &ReadError{Addr: addr, Size: size, Err: fmt.Errorf("short read: got %d bytes", len(buf))}
	}
	logging.LogMemoryRead(addr, buf)

	switch size {
	case 1:
		return uint32(buf[0]), nil
	case 2:
		return uint32(r.order.Uint16(buf)), nil
	default:
		return r.order.Uint32(buf), nil
	}
}

// Word reads a pointer-sized value at addr.
func (r *Reader) Word(ctx context.Context, addr uint32) (uint32, error) {
	return r.Uint(ctx, addr, WordSize)
}

// Field reads f from the structure at base.
func (r *Reader) Field(ctx context.Context, base uint32, f Field) (uint32, error) {
	return r.Uint(ctx, Offset(base, f.Offset), f.Size)
}
