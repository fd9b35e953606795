package walk

import (
	"context"
	"fmt"

	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/target"
)

// maxPlausibleOrder bounds the orders read from a struct buddy. A 32-bit
// address space has no blocks of order 32 or above.
const maxPlausibleOrder = 31

// Bucket is the free list of one order.
type Bucket struct {
	Order int
	Head  uint32
	Trace Trace
}

// BuddyState is every free list of one allocator.
type BuddyState struct {
	Name     string
	Addr     uint32
	MinOrder int
	MaxOrder int
	Buckets  []Bucket
}

// Malformed reports whether any bucket was found corrupt.
func (s BuddyState) Malformed() bool {
	for _, b := range s.Buckets {
		if b.Trace.Malformed {
			return true
		}
	}
	return false
}

// OrderRangeError means the allocator's order bounds are not believable,
// which usually means addr is not a buddy allocator.
type OrderRangeError struct {
	Addr     uint32
	MinOrder int
	MaxOrder int
}

func (e *OrderRangeError) Error() string {
	return fmt.Sprintf("buddy at 0x%08x has implausible order range [%d, %d]", e.Addr, e.MinOrder, e.MaxOrder)
}

// WalkBuddyAllocator reads the allocator at addr and walks the free list
// of every order from its minimum to its maximum.
func (w *Walker) WalkBuddyAllocator(ctx context.Context, name string, addr uint32, layout profile.BuddyLayout) (BuddyState, error) {
	state := BuddyState{Name: name, Addr: addr}
	buckets := addr

	switch layout.Style {
	case profile.BuddyStruct:
		maxOrder, err := w.reader.Field(ctx, addr, layout.MaxOrder)
		if err != nil {
			return state, err
		}
		minOrder, err := w.reader.Field(ctx, addr, layout.MinOrder)
		if err != nil {
			return state, err
		}
		state.MinOrder, state.MaxOrder = int(minOrder), int(maxOrder)
		buckets, err = w.reader.Field(ctx, addr, layout.List)
		if err != nil {
			return state, err
		}
	case profile.BuddyArray:
		state.MinOrder, state.MaxOrder = layout.FixedMinOrder, layout.FixedMaxOrder
	default:
		return state, fmt.Errorf("unknown buddy style %q", layout.Style)
	}

	if state.MinOrder > state.MaxOrder || state.MaxOrder > maxPlausibleOrder {
		return state, &OrderRangeError{Addr: addr, MinOrder: state.MinOrder, MaxOrder: state.MaxOrder}
	}

	order := layout.NodeOrder
	shape := Shape{Next: layout.NodeNext, Order: &order, End: List}
	for k := state.MinOrder; k <= state.MaxOrder; k++ {
		head, err := w.reader.Word(ctx, target.Offset(buckets, k*target.WordSize))
		if err != nil {
			return state, err
		}
		trace, err := w.Collect(ctx, head, shape)
		state.Buckets = append(state.Buckets, Bucket{Order: k, Head: head, Trace: trace})
		if err != nil {
			return state, err
		}
	}
	return state, nil
}
