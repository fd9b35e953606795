package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/muurk/taskscope/internal/profile"
	"github.com/muurk/taskscope/internal/target"
	"github.com/muurk/taskscope/internal/task"
	"github.com/muurk/taskscope/internal/walk"
)

var (
	showOrders bool
	listAsList bool
)

func init() {
	rootCmd.AddCommand(printListCmd)
	rootCmd.AddCommand(printBuddyCmd)

	addImageFlags(printListCmd)
	printListCmd.Flags().BoolVar(&listAsList, "null-terminated", false, "Treat the structure as a NULL-terminated list instead of a ring")

	addImageFlags(printBuddyCmd)
	printBuddyCmd.Flags().BoolVar(&showOrders, "orders", false, "Print the order tag of every free block")
}

var printListCmd = &cobra.Command{
	Use:   "print-list [EXPR]",
	Short: "Walk the task ring",
	Long: `Follow the next links of the task ring starting at EXPR, a gdb expression
evaluating to a ring node address or a plain address. Without EXPR the walk
starts at the current task's ring node, which the profile places inside the
task record (task_ctrl.runnable_task_list for f4os).

The walk ends when a link returns to the first node. A link to any other
node already visited, or a NULL link, is reported as a malformed list.`,
	Example: `  taskscope print-list
  taskscope print-list '&curr_task->runnable_task_list'
  taskscope print-list --image ram.bin 0x20000120`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrintList,
}

func runPrintList(cmd *cobra.Command, args []string) (err error) {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	src, err := openMemory(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer closeInto(&err, src)

	head, err := listHead(ctx, src, args)
	if err != nil {
		return err
	}

	shape := walk.Shape{Next: src.profile.Task.Next, End: walk.Ring}
	if listAsList {
		shape.End = walk.List
	}
	trace, walkErr := walk.New(target.NewReader(src.mem, nil)).Collect(ctx, head, shape)
	fmt.Fprintln(cmd.OutOrStdout(), trace.Format(walk.RenderOptions{}))
	return walkErr
}

func listHead(ctx context.Context, src *memorySource, args []string) (uint32, error) {
	if len(args) == 1 {
		return src.value(ctx, args[0])
	}
	if src.session == nil {
		return 0, fmt.Errorf("an address is required when walking a memory image")
	}
	addr, err := target.AddressOf(ctx, src.session, src.profile.Task.Current)
	if err != nil {
		return 0, err
	}
	return currentRingNode(ctx, src.mem, src.profile.Task, addr)
}

// currentRingNode reads the current-task pointer stored at current and
// returns the ring node of that task.
func currentRingNode(ctx context.Context, mem target.Memory, l profile.TaskLayout, current uint32) (uint32, error) {
	cur, err := target.NewReader(mem, nil).Word(ctx, current)
	if err != nil {
		return 0, err
	}
	if cur == 0 {
		return 0, fmt.Errorf("cannot walk the run ring: %s", task.NullTaskMessage)
	}
	return l.RingNode(cur), nil
}

var printBuddyCmd = &cobra.Command{
	Use:   "print-buddy [ALLOCATOR...]",
	Short: "Walk the free lists of buddy allocators",
	Long: `Print the free list of every order of each allocator, one line per order:

  Order 4: NULL
  Order 5: 0x20001a00 -> 0x20001c00 -> NULL

ALLOCATOR is a symbol (live target only) or an address. Without arguments
every allocator named by the profile is printed. Lists that revisit a node
are cut there and marked as malformed.`,
	Example: `  taskscope print-buddy
  taskscope print-buddy kernel_buddy --orders
  taskscope print-buddy --image ram.bin 0x20001f40`,
	RunE: runPrintBuddy,
}

func runPrintBuddy(cmd *cobra.Command, args []string) (err error) {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	src, err := openMemory(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer closeInto(&err, src)

	names := args
	if len(names) == 0 {
		if src.session == nil {
			return fmt.Errorf("allocator addresses are required when walking a memory image")
		}
		names = src.profile.Buddy.Allocators
	}

	w := walk.New(target.NewReader(src.mem, nil))
	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		if err := printBuddy(ctx, cmd.OutOrStdout(), w, src, name); err != nil {
			return err
		}
	}
	return nil
}

func printBuddy(ctx context.Context, out io.Writer, w *walk.Walker, src *memorySource, name string) error {
	addr, err := src.address(ctx, name)
	if err != nil {
		return err
	}
	state, err := w.WalkBuddyAllocator(ctx, name, addr, src.profile.Buddy)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s @ 0x%08x (orders %d-%d)\n", name, addr, state.MinOrder, state.MaxOrder)
	return state.Render(out, walk.RenderOptions{ShowOrders: showOrders})
}

// firstAllocator is the allocator malloc-stress reports on.
func firstAllocator(p *profile.Profile) (string, error) {
	if len(p.Buddy.Allocators) == 0 {
		return "", fmt.Errorf("profile %s names no buddy allocators", p.Name)
	}
	return p.Buddy.Allocators[0], nil
}
