package walk

import (
	"fmt"
	"io"
	"strings"
)

// Messages appended to the rendering of a corrupt structure.
const (
	LoopMessage       = "(Loop detected. Malformed list?)"
	BrokenRingMessage = "(Unexpected NULL. Malformed list?)"
)

// RenderOptions controls how traces are printed.
type RenderOptions struct {
	// ShowOrders prints each free-list node's order tag after it.
	ShowOrders bool
}

func formatNode(n Node, opts RenderOptions) string {
	if opts.ShowOrders && n.HasOrder {
		return fmt.Sprintf("0x%08x (%d)", n.Addr, n.Order)
	}
	return fmt.Sprintf("0x%08x", n.Addr)
}

// Format renders a trace as "a -> b -> END". Lists end in NULL, closed
// rings end in their head address, and corrupt structures end at the
// revisited node followed by LoopMessage. A ring broken by a null link
// ends in NULL followed by BrokenRingMessage.
func (tr Trace) Format(opts RenderOptions) string {
	if len(tr.Nodes) == 0 {
		if tr.Malformed {
			return "NULL " + BrokenRingMessage
		}
		return "NULL"
	}

	parts := make([]string, 0, len(tr.Nodes)+1)
	for _, n := range tr.Nodes {
		parts = append(parts, formatNode(n, opts))
	}

	switch tr.Stop {
	case StopHead, StopLoop:
		parts = append(parts, fmt.Sprintf("0x%08x", tr.StopAddr))
	case StopError:
		parts = append(parts, "?")
	default:
		parts = append(parts, "NULL")
	}

	out := strings.Join(parts, " -> ")
	switch {
	case tr.Stop == StopBadNull:
		out += " " + BrokenRingMessage
	case tr.Malformed:
		out += " " + LoopMessage
	}
	return out
}

// Render writes one "Order k: ..." line per bucket.
func (s BuddyState) Render(w io.Writer, opts RenderOptions) error {
	for _, b := range s.Buckets {
		if _, err := fmt.Fprintf(w, "Order %d: %s\n", b.Order, b.Trace.Format(opts)); err != nil {
			return err
		}
	}
	return nil
}
