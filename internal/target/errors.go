package target

import "fmt"

// ReadError means target state could not be read: the target was running,
// the address was not mapped, or the debugger connection failed.
type ReadError struct {
	// Register is set for register reads, Addr and Size for memory reads.
	Register string
	Addr     uint32
	Size     int
	Err      error
}

func (e *ReadError) Error() string {
	if e.Register != "" {
		return fmt.Sprintf("cannot read register %s: %v", e.Register, e.Err)
	}
	return fmt.Sprintf("cannot read %d bytes at 0x%08x: %v", e.Size, e.Addr, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// UnmappedError is the cause of a read outside any known memory region.
type UnmappedError struct {
	Addr uint32
	Size int
}

func (e *UnmappedError) Error() string {
	return fmt.Sprintf("address range 0x%08x+%d is not mapped", e.Addr, e.Size)
}
