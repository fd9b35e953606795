package walk

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/target"
)

func structLayout() profile.BuddyLayout {
	return profile.BuddyLayout{
		Style:     profile.BuddyStruct,
		MaxOrder:  target.Field{Offset: 0, Size: 1},
		MinOrder:  target.Field{Offset: 1, Size: 1},
		List:      target.Word(16),
		NodeOrder: target.Field{Offset: 0, Size: 1},
		NodeNext:  target.Word(4),
	}
}

const (
	buddyAddr = ramBase + 0x100
	listAddr  = ramBase + 0x200
)

func newBuddy(minOrder, maxOrder byte) *target.Image {
	img := target.NewImage(ramBase, 0x2000)
	img.PutByte(buddyAddr, maxOrder)
	img.PutByte(buddyAddr+1, minOrder)
	img.PutWord(buddyAddr+16, listAddr)
	return img
}

func TestWalkBuddyAllocatorOnlyOrderThree(t *testing.T) {
	img := newBuddy(1, 5)
	a1, a2 := uint32(ramBase+0x1000), uint32(ramBase+0x1008)
	img.PutWord(listAddr+3*4, a1)
	img.PutByte(a1, 3)
	img.PutWord(a1+4, a2)
	img.PutByte(a2, 3)

	state, err := New(target.NewReader(img, nil)).WalkBuddyAllocator(context.Background(), "user_buddy", buddyAddr, structLayout())
	if err != nil {
		t.Fatalf("WalkBuddyAllocator() error = %v", err)
	}
	if state.MinOrder != 1 || state.MaxOrder != 5 || len(state.Buckets) != 5 {
		t.Fatalf("state = %+v", state)
	}

	var buf bytes.Buffer
	if err := state.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := strings.Join([]string{
		"Order 1: NULL",
		"Order 2: NULL",
		"Order 3: 0x20001000 -> 0x20001008 -> NULL",
		"Order 4: NULL",
		"Order 5: NULL",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Errorf("Render() =\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	if err := state.Render(&buf, RenderOptions{ShowOrders: true}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Order 3: 0x20001000 (3) -> 0x20001008 (3) -> NULL") {
		t.Errorf("Render(ShowOrders) =\n%s", buf.String())
	}
}

func TestWalkBuddyAllocatorArrayStyle(t *testing.T) {
	img := target.NewImage(ramBase, 0x2000)
	layout := profile.BuddyLayout{
		Style:         profile.BuddyArray,
		FixedMinOrder: 4,
		FixedMaxOrder: 17,
		NodeOrder:     target.Field{Offset: 0, Size: 1},
		NodeNext:      target.Word(4),
	}
	node := uint32(ramBase + 0x1800)
	img.PutWord(listAddr+17*4, node)
	img.PutByte(node, 17)

	state, err := New(target.NewReader(img, nil)).WalkBuddyAllocator(context.Background(), "buddy_list", listAddr, layout)
	if err != nil {
		t.Fatalf("WalkBuddyAllocator() error = %v", err)
	}
	if len(state.Buckets) != 14 {
		t.Fatalf("got %d buckets, want 14", len(state.Buckets))
	}
	last := state.Buckets[len(state.Buckets)-1]
	if last.Order != 17 || len(last.Trace.Nodes) != 1 || last.Trace.Nodes[0].Order != 17 {
		t.Errorf("order 17 bucket = %+v", last)
	}
}

func TestWalkBuddyAllocatorMalformedBucket(t *testing.T) {
	img := newBuddy(4, 4)
	a := uint32(ramBase + 0x1000)
	img.PutWord(listAddr+4*4, a)
	img.PutWord(a+4, a)

	state, err := New(target.NewReader(img, nil)).WalkBuddyAllocator(context.Background(), "kernel_buddy", buddyAddr, structLayout())
	if err != nil {
		t.Fatalf("WalkBuddyAllocator() error = %v", err)
	}
	if !state.Malformed() {
		t.Error("expected malformed allocator")
	}
}

func TestWalkBuddyAllocatorImplausibleOrders(t *testing.T) {
	img := newBuddy(9, 2)
	_, err := New(target.NewReader(img, nil)).WalkBuddyAllocator(context.Background(), "x", buddyAddr, structLayout())
	var rangeErr *OrderRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("WalkBuddyAllocator() error = %v, want *OrderRangeError", err)
	}
}
