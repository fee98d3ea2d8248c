package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"kernos/internal/physmem"
	"kernos/kernel/hal/limine"
	"kernos/kernel/mem"
	"kernos/kernel/mem/vmm"
)

// machineSpec is the JSON description of a simulated machine. All
// addresses are physical except kernel.virtual_base.
type machineSpec struct {
	MemoryMap []regionSpec `json:"memory_map"`
	Kernel    struct {
		PhysicalBase uint64 `json:"physical_base"`
		VirtualBase  uint64 `json:"virtual_base"`
	} `json:"kernel"`
	StackPointer uint64 `json:"stack_pointer"`
	StackSize    uint64 `json:"stack_size"`
}

type regionSpec struct {
	Base   uint64 `json:"base"`
	Length uint64 `json:"length"`
	Type   string `json:"type"`
}

// defaultMachine is a 128Mb machine laid out like a small virtual machine
// booted by limine.
func defaultMachine() *machineSpec {
	spec := &machineSpec{
		MemoryMap: []regionSpec{
			{Base: 0x0, Length: 0x1000, Type: "reserved"},
			{Base: 0x1000, Length: 0x9e000, Type: "usable"},
			{Base: 0x9f000, Length: 0x61000, Type: "reserved"},
			{Base: 0x100000, Length: 0x5f00000, Type: "usable"},
			{Base: 0x6000000, Length: 0x100000, Type: "bootloader (reclaimable)"},
			{Base: 0x6100000, Length: 0x200000, Type: "kernel and modules"},
			{Base: 0x6300000, Length: 0x1c00000, Type: "usable"},
			{Base: 0x7f00000, Length: 0x100000, Type: "ACPI (reclaimable)"},
		},
		StackPointer: 0x60ff000,
	}
	spec.Kernel.PhysicalBase = 0x6100000
	spec.Kernel.VirtualBase = uint64(vmm.HigherHalfBase)
	return spec
}

func loadMachine(path string) (*machineSpec, error) {
	if path == "" {
		return defaultMachine(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open machine description: %w", err)
	}
	defer f.Close()

	return decodeMachine(f)
}

func decodeMachine(r io.Reader) (*machineSpec, error) {
	spec := new(machineSpec)
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(spec); err != nil {
		return nil, fmt.Errorf("failed to decode machine description: %w", err)
	}

	if spec.Kernel.VirtualBase == 0 {
		spec.Kernel.VirtualBase = uint64(vmm.HigherHalfBase)
	}
	return spec, nil
}

func parseEntryType(name string) (limine.MemoryEntryType, error) {
	for t := limine.MemUsable; t <= limine.MemFramebuffer; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown memory region type %q", name)
}

func (spec *machineSpec) memoryMap() (limine.MemoryMap, error) {
	mmap := make(limine.MemoryMap, 0, len(spec.MemoryMap))
	for _, region := range spec.MemoryMap {
		entryType, err := parseEntryType(region.Type)
		if err != nil {
			return nil, err
		}
		mmap = append(mmap, limine.MemoryMapEntry{Base: region.Base, Length: region.Length, Type: entryType})
	}
	return mmap, nil
}

// machine is a machine description backed by simulated physical memory.
type machine struct {
	arena *physmem.Arena
	info  *limine.BootInfo
}

// newMachine reserves enough host memory to cover every usable frame and
// builds the boot information a loader would report for it. The direct map
// starts at the arena base.
func newMachine(spec *machineSpec) (*machine, error) {
	mmap, err := spec.memoryMap()
	if err != nil {
		return nil, err
	}

	top := mmap.UsableTop()
	if top == 0 {
		return nil, fmt.Errorf("memory map contains no usable regions")
	}

	arena, err := physmem.New(mem.Size(top))
	if err != nil {
		return nil, err
	}

	return &machine{
		arena: arena,
		info: &limine.BootInfo{
			MemoryMap: mmap,
			KernelAddress: &limine.KernelAddress{
				PhysicalBase: spec.Kernel.PhysicalBase,
				VirtualBase:  spec.Kernel.VirtualBase,
			},
			HHDMOffset:   uint64(arena.Base()),
			StackSize:    mem.Size(spec.StackSize),
			StackPointer: arena.Base() + uintptr(spec.StackPointer),
		},
	}, nil
}

func (m *machine) Close() error {
	return m.arena.Close()
}

// hardware stands in for the processor. Port I/O is ignored.
type hardware struct {
	out     io.Writer
	verbose bool

	rootLoads int
	flushes   int
}

func (h *hardware) LoadRootTable(physAddr uintptr) {
	h.rootLoads++
	if h.verbose {
		fmt.Fprintf(h.out, "[cpu] load root table 0x%x\n", physAddr)
	}
}

func (h *hardware) FlushTLBEntry(virtAddr uintptr) {
	h.flushes++
	if h.verbose {
		fmt.Fprintf(h.out, "[cpu] flush TLB entry 0x%x\n", virtAddr)
	}
}

func (h *hardware) ReadPort8(_ uint16) uint8 { return 0 }

func (h *hardware) WritePort8(_ uint16, _ uint8) {}
