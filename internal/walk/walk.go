// Package walk traverses linked structures in kernel memory without
// trusting them.
//
// A walk never follows a link to a node it has already visited. When that
// would happen the structure is corrupt, the walk stops, and the trace is
// marked malformed. Corruption is a finding about the kernel, so it is
// reported in the trace rather than as an error; errors are reserved for
// memory that could not be read.
package walk

import (
	"context"
	"iter"

	"github.com/muurk/taskscope/internal/target"
)

// Terminator is how a well-formed structure ends.
type Terminator int

const (
	// List structures end at a null link.
	List Terminator = iota
	// Ring structures end when a link leads back to the head.
	Ring
)

func (t Terminator) String() string {
	if t == Ring {
		return "ring"
	}
	return "list"
}

// Shape tells the walker how to read a node.
type Shape struct {
	Next target.Field
	// Order is read into Node.Order when set.
	Order *target.Field
	End   Terminator
}

// Node is one visited node.
type Node struct {
	Addr     uint32
	Order    uint32
	HasOrder bool
}

// Stop reasons.
const (
	StopNull    = "null"
	StopHead    = "head"
	StopLoop    = "loop"
	StopBadNull = "unexpected null"
	StopError   = "read error"
)

// Traversal is a lazy walk. Iterate Nodes once; afterwards Malformed, Err
// and Stop describe how the walk ended.
type Traversal struct {
	reader *target.Reader
	shape  Shape
	head   uint32
	ctx    context.Context

	malformed bool
	stop      string
	stopAddr  uint32
	err       error
}

// Walker walks structures through a Reader.
type Walker struct {
	reader *target.Reader
}

// New returns a Walker.
func New(reader *target.Reader) *Walker {
	return &Walker{reader: reader}
}

// Walk starts a traversal at head. Nothing is read until Nodes is ranged over.
func (w *Walker) Walk(ctx context.Context, head uint32, shape Shape) *Traversal {
	return &Traversal{reader: w.reader, shape: shape, head: head, ctx: ctx}
}

// Nodes yields each node once, head first, after its fields have been
// read. Stopping the range early leaves Stop empty.
func (t *Traversal) Nodes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		if t.head == 0 {
			if t.shape.End == Ring {
				t.malformed = true
				t.stop = StopBadNull
			} else {
				t.stop = StopNull
			}
			return
		}

		seen := make(map[uint32]struct{})
		addr := t.head
		for {
			seen[addr] = struct{}{}
			node := Node{Addr: addr}
			if t.shape.Order != nil {
				order, err := t.reader.Field(t.ctx, addr, *t.shape.Order)
				if err != nil {
					t.fail(addr, err)
					return
				}
				node.Order, node.HasOrder = order, true
			}
			next, err := t.reader.Field(t.ctx, addr, t.shape.Next)
			if err != nil {
				t.fail(addr, err)
				return
			}
			if !yield(node) {
				return
			}

			switch {
			case next == 0 && t.shape.End == List:
				t.stop = StopNull
				return
			case next == 0:
				t.malformed = true
				t.stop = StopBadNull
				return
			case next == t.head && t.shape.End == Ring:
				t.stop, t.stopAddr = StopHead, next
				return
			}
			if _, visited := seen[next]; visited {
				t.malformed = true
				t.stop, t.stopAddr = StopLoop, next
				return
			}
			addr = next
		}
	}
}

func (t *Traversal) fail(addr uint32, err error) {
	t.err = err
	t.stop, t.stopAddr = StopError, addr
}

// Malformed reports whether the structure was found corrupt.
func (t *Traversal) Malformed() bool {
	return t.malformed
}

// Err returns the read error that ended the walk, if any.
func (t *Traversal) Err() error {
	return t.err
}

// Stop returns why the walk ended and the address involved: the head for a
// closed ring, the revisited node for a loop.
func (t *Traversal) Stop() (string, uint32) {
	return t.stop, t.stopAddr
}

// Trace is a fully collected traversal.
type Trace struct {
	Head      uint32
	End       Terminator
	Nodes     []Node
	Malformed bool
	Stop      string
	StopAddr  uint32
}

// Collect walks head to the end. The partial trace is returned alongside a
// read error.
func (w *Walker) Collect(ctx context.Context, head uint32, shape Shape) (Trace, error) {
	t := w.Walk(ctx, head, shape)
	trace := Trace{Head: head, End: shape.End}
	for n := range t.Nodes() {
		trace.Nodes = append(trace.Nodes, n)
	}
	trace.Malformed = t.Malformed()
	trace.Stop, trace.StopAddr = t.Stop()
	return trace, t.Err()
}

// Addresses returns the node addresses in visit order.
func (tr Trace) Addresses() []uint32 {
	out := make([]uint32, len(tr.Nodes))
	for i, n := range tr.Nodes {
		out[i] = n.Addr
	}
	return out
}
