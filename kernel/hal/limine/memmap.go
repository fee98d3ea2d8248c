// Package limine describes the boot information handed over by a Limine
// compatible boot loader: the physical memory map, the higher-half direct map
// offset and the load addresses of the kernel image.
package limine

import (
	"io"

	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
)

// MemoryEntryType defines the type of a MemoryMapEntry. The values match the
// LIMINE_MEMMAP_* constants.
type MemoryEntryType uint64

const (
	// MemUsable indicates that the memory region is available for use.
	MemUsable MemoryEntryType = iota

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemAcpiNvs indicates memory that must be preserved when hibernating.
	MemAcpiNvs

	// MemBadMemory indicates a region containing faulty RAM.
	MemBadMemory

	// MemBootloaderReclaimable indicates a region used by the boot loader
	// (including its page tables) that can be reused once the kernel stops
	// depending on loader data.
	MemBootloaderReclaimable

	// MemKernelAndModules indicates the region where the kernel image and
	// any modules were loaded.
	MemKernelAndModules

	// MemFramebuffer indicates the region backing the framebuffer.
	MemFramebuffer

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

var (
	memTypeNames = [memUnknown]string{
		"usable",
		"reserved",
		"ACPI (reclaimable)",
		"ACPI (non-volatile)",
		"bad memory",
		"bootloader (reclaimable)",
		"kernel and modules",
		"framebuffer",
	}
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	if t >= memUnknown {
		return "unknown"
	}

	return memTypeNames[t]
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	Base uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// End returns the first physical address past the end of the region.
func (e *MemoryMapEntry) End() uint64 {
	return e.Base + e.Length
}

// Contains returns true if physAddr lies inside the region.
func (e *MemoryMapEntry) Contains(physAddr uint64) bool {
	return physAddr >= e.Base && physAddr < e.End()
}

// MemoryMap is the ordered list of physical memory regions reported by the
// boot loader. It is never modified by the memory core.
type MemoryMap []MemoryMapEntry

// MemRegionVisitor defines a visitor function that gets invoked by Visit for
// each memory region in the map. The visitor must return true to continue or
// false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// Visit invokes the supplied visitor for each memory region in the map.
// Regions with an unknown type are reported as MemReserved. The visitor
// receives a copy of each entry so the loader-provided data is never altered.
func (m MemoryMap) Visit(visitor MemRegionVisitor) {
	var entry MemoryMapEntry
	for i := 0; i < len(m); i++ {
		entry = m[i]

		// Mark unknown entry types as reserved
		if entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}
	}
}

// TotalSize returns the sum of the lengths of all regions regardless of
// their type.
func (m MemoryMap) TotalSize() uint64 {
	var total uint64
	for i := 0; i < len(m); i++ {
		total += m[i].Length
	}

	return total
}

// UsableSize returns the sum of the lengths of all usable regions.
func (m MemoryMap) UsableSize() uint64 {
	var total uint64
	m.Visit(func(entry *MemoryMapEntry) bool {
		if entry.Type == MemUsable {
			total += entry.Length
		}
		return true
	})

	return total
}

// UsableTop returns the first physical address past the end of the highest
// usable region or 0 if the map contains no usable regions.
func (m MemoryMap) UsableTop() uint64 {
	var top uint64
	m.Visit(func(entry *MemoryMapEntry) bool {
		if entry.Type == MemUsable && entry.End() > top {
			top = entry.End()
		}
		return true
	})

	return top
}

// FindRegion returns the first region of the requested type that contains
// physAddr. The second return value is false if no such region exists.
func (m MemoryMap) FindRegion(physAddr uint64, regionType MemoryEntryType) (MemoryMapEntry, bool) {
	var (
		found  MemoryMapEntry
		exists bool
	)

	m.Visit(func(entry *MemoryMapEntry) bool {
		if entry.Type == regionType && entry.Contains(physAddr) {
			found, exists = *entry, true
			return false
		}
		return true
	})

	return found, exists
}

// Print writes a human readable version of the memory map to w.
func (m MemoryMap) Print(w io.Writer) {
	kfmt.Fprintf(w, "system memory map:\n")
	m.Visit(func(region *MemoryMapEntry) bool {
		kfmt.Fprintf(w, "\t[0x%16x - 0x%16x], size: %10d, type: %s\n", region.Base, region.End(), region.Length, region.Type.String())
		return true
	})
	kfmt.Fprintf(w, "available memory: %dKb\n", uint64(mem.Size(m.UsableSize())/mem.Kb))
}
