package main

import (
	"fmt"
	"io"

	"kernos/kernel/mem"
	"kernos/kernel/mem/physmap"
	"kernos/kernel/mem/pmm"

	"github.com/spf13/cobra"
)

func newLayoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the memory map and where the frame bytemap is placed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printLayout(cmd, opts)
		},
	}
}

func printLayout(cmd *cobra.Command, opts *options) error {
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
	m.info.MemoryMap.Print(out)

	log := io.Discard
	if opts.verbose {
		log = out
	}

	var frames pmm.BytemapAllocator
	xlat := physmap.New(m.arena.Base(), m.arena.Base())
	if kerr := frames.Init(m.info.MemoryMap, xlat, log); kerr != nil {
		return fmt.Errorf("bytemap placement failed: %w", kerr)
	}

	bytemapSize := mem.Size(frames.BytemapPages()) << mem.PageShift
	fmt.Fprintf(out, "bytemap: [0x%016x - 0x%016x], %d pages\n", frames.BytemapBase(), frames.BytemapBase()+uintptr(bytemapSize), frames.BytemapPages())
	fmt.Fprintf(out, "tracked frames: %d, total frames: %d, free frames: %d\n", frames.SpanFrames(), frames.TotalFrames(), frames.FreeFrameCount())
	return nil
}
