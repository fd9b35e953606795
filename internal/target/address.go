package target

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

var hexAddress = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// ParseAddress extracts the first hex number from a debugger rendering
// such as "(task_ctrl **) 0x20000004 <curr_task>", or parses s as a plain
// number with an optional 0x prefix.
func ParseAddress(s string) (uint32, error) {
	if m := hexAddress.FindString(s); m != "" {
		v, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("address %q: %w", m, err)
		}
		return uint32(v), nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("not an address: %q", s)
	}
	return uint32(v), nil
}

// PointerType is the cast used to read expressions as addresses.
const PointerType = "void *"

// TypedExpression renders expr cast to typ. An empty typ leaves expr as it
// is.
func TypedExpression(expr, typ string) string {
	if typ == "" {
		return expr
	}
	return fmt.Sprintf("(%s)(%s)", typ, expr)
}

// AddressOf asks the target where symbol lives.
func AddressOf(ctx context.Context, t Target, symbol string) (uint32, error) {
	out, err := t.Evaluate(ctx, "&"+symbol, "")
	if err != nil {
		return 0, fmt.Errorf("locating %s: %w", symbol, err)
	}
	return ParseAddress(out)
}
