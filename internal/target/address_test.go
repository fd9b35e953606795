package target

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "(task_ctrl * volatile *) 0x20000004 <curr_task>", want: 0x20000004},
		{in: "0x08000190", want: 0x08000190},
		{in: "536870912", want: 0x20000000},
		{in: "(struct buddy *) 0x2000a000 <user_buddy>", want: 0x2000a000},
		{in: "0x123456789", wantErr: true},
		{in: "curr_task", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTypedExpression(t *testing.T) {
	require.Equal(t, "curr_task", TypedExpression("curr_task", ""))
	require.Equal(t, "(void *)(malloc(16))", TypedExpression("malloc(16)", PointerType))
	require.Equal(t, "(unsigned char)(user_buddy.max_order)", TypedExpression("user_buddy.max_order", "unsigned char"))
}
