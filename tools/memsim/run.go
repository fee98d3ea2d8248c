package main

import (
	"fmt"

	"kernos/kernel/mem"
	"kernos/kernel/mem/kmem"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *options) *cobra.Command {
	var allocs int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform the memory hand-off and print its diagnostics",
		Long: `The run command initializes the frame allocator and the kernel page
tables, maps the kernel image, the stack and the bytemap and activates the
kernel tables. The diagnostic stream is printed as the kernel would emit it.

Example:
  memsim run
  memsim run --map machine.json --allocs 4 -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHandOff(cmd, opts, allocs)
		},
	}

	cmd.Flags().IntVar(&allocs, "allocs", 0, "Number of frames to allocate after the hand-off")
	return cmd
}

func runHandOff(cmd *cobra.Command, opts *options, allocs int) error {
	spec, err := loadMachine(opts.mapFile)
	if err != nil {
		return err
	}

	m, err := newMachine(spec)
	if err != nil {
		return err
	}
	defer m.Close()

	out := cmd.OutOrStdout()
	hw := &hardware{out: out, verbose: opts.verbose}

	kmemOpts := []kmem.Option{kmem.WithKernelWindowOffset(m.arena.Base())}
	if opts.stackSize != 0 {
		kmemOpts = append(kmemOpts, kmem.WithStackSize(mem.Size(opts.stackSize)))
	}

	var ctx kmem.Context
	if kerr := ctx.Init(m.info, hw, out, kmemOpts...); kerr != nil {
		return fmt.Errorf("hand-off failed: [%s] %s (%s)", kerr.Module, kerr.Message, kerr.Kind)
	}

	for i := 0; i < allocs; i++ {
		frame, kerr := ctx.AllocFrame()
		if kerr != nil {
			return fmt.Errorf("allocation %d failed: %w", i, kerr)
		}
		fmt.Fprintf(out, "allocated frame 0x%x\n", frame.Address())
	}

	fmt.Fprintf(out, "root table: 0x%x\n", ctx.Tables().RootAddress())
	fmt.Fprintf(out, "free frames: %d/%d\n", ctx.Frames().FreeFrameCount(), ctx.Frames().TotalFrames())
	if opts.verbose {
		fmt.Fprintf(out, "root loads: %d, TLB flushes: %d\n", hw.rootLoads, hw.flushes)
	}
	return nil
}
