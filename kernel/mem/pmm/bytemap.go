package pmm

import (
	"io"
	"unsafe"

	"kernos/kernel"
	"kernos/kernel/hal/limine"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
)

const (
	// frameFree is the value of bit 0 of a bytemap entry for a free frame.
	// A zeroed bytemap therefore reads as "all frames used".
	frameFree = uint8(1)

	// frameStateMask selects the bits of a bytemap entry that encode the
	// frame state; the remaining bits are reserved.
	frameStateMask = uint8(1)
)

var (
	// ErrNoMemoryMap is returned by Init when the memory map is empty or
	// lists no usable memory.
	ErrNoMemoryMap = &kernel.Error{Module: "pmm", Kind: kernel.KindBootstrapUnsatisfiable, Message: "memory map contains no usable regions"}

	// ErrBytemapNoRoom is returned by Init when no usable region can hold
	// the bytemap as a single contiguous run of frames.
	ErrBytemapNoRoom = &kernel.Error{Module: "pmm", Kind: kernel.KindBootstrapUnsatisfiable, Message: "no usable region large enough to hold the frame bytemap"}

	// ErrOutOfMemory is returned when no run of free frames satisfies an
	// allocation request.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Kind: kernel.KindOutOfMemory, Message: "out of memory"}

	// ErrInvalidFrameCount is returned when requesting less than one frame.
	ErrInvalidFrameCount = &kernel.Error{Module: "pmm", Kind: kernel.KindInvariantViolation, Message: "frame count must be at least 1"}

	// ErrFrameOutOfRange is returned when freeing a frame that is not
	// tracked by the bytemap.
	ErrFrameOutOfRange = &kernel.Error{Module: "pmm", Kind: kernel.KindInvariantViolation, Message: "frame is not tracked by the bytemap"}

	// memsetFn is used by tests and is automatically inlined by the compiler.
	memsetFn = mem.Memset

	pmmLogPrefix = []byte("[pmm] ")
)

// PhysTranslator converts a physical address to a pointer the allocator can
// dereference.
type PhysTranslator interface {
	PhysToPointer(physAddr uintptr) uintptr
}

// BytemapAllocator implements a physical frame allocator that tracks each
// frame below the top of usable memory with one byte. Bit 0 of each byte is
// set when the frame is free.
//
// The bytemap lives in physical memory inside the first usable region that
// can hold it. Its address is translated on every access so the allocator
// keeps working after the kernel switches to its own page tables, provided
// that the bytemap pages are mapped in the kernel identity window.
type BytemapAllocator struct {
	xlat PhysTranslator
	log  kfmt.PrefixWriter

	// bytemapBase is the physical address of the bytemap.
	bytemapBase uintptr

	// bytemapPages is the number of frames backing the bytemap.
	bytemapPages uint64

	// totalFrames is the sum of all memory map entry lengths in frames.
	totalFrames uint64

	// spanFrames is the number of bytemap entries; it corresponds to the
	// first frame past the end of the highest usable region.
	spanFrames uint64

	// freeFrames tracks the number of entries with the free bit set.
	freeFrames uint64

	// cursor is the frame where the next allocation scan starts.
	cursor uint64
}

// Init builds the bytemap from the supplied memory map. Diagnostics are
// written to log, which may be nil.
//
// Frames inside usable regions are marked free; frames that overlap any other
// region type and the frames backing the bytemap itself are marked used.
func (alloc *BytemapAllocator) Init(mmap limine.MemoryMap, xlat PhysTranslator, log io.Writer) *kernel.Error {
	alloc.xlat = xlat
	alloc.log = kfmt.PrefixWriter{Sink: log, Prefix: pmmLogPrefix}
	alloc.cursor = 0
	alloc.freeFrames = 0

	if len(mmap) == 0 {
		return ErrNoMemoryMap
	}

	alloc.totalFrames = mmap.TotalSize() >> mem.PageShift
	alloc.spanFrames = mmap.UsableTop() >> mem.PageShift
	if alloc.spanFrames == 0 {
		return ErrNoMemoryMap
	}

	alloc.bytemapPages = bytemapPagesFor(alloc.totalFrames, alloc.spanFrames)
	if err := alloc.placeBytemap(mmap); err != nil {
		return err
	}

	memsetFn(alloc.xlat.PhysToPointer(alloc.bytemapBase), 0, mem.Size(alloc.bytemapPages)<<mem.PageShift)

	mmap.Visit(func(region *limine.MemoryMapEntry) bool {
		if region.Type != limine.MemUsable {
			return true
		}

		// Reported addresses may not be page-aligned; only frames that
		// are fully contained in the region can be handed out.
		startFrame := (region.Base + uint64(mem.PageSize-1)) >> mem.PageShift
		endFrame := region.End() >> mem.PageShift
		alloc.markRange(startFrame, endFrame, frameFree)
		return true
	})

	mmap.Visit(func(region *limine.MemoryMapEntry) bool {
		if region.Type == limine.MemUsable || region.Length == 0 {
			return true
		}

		// Any frame that overlaps a non-usable region stays used.
		startFrame := region.Base >> mem.PageShift
		endFrame := (region.End() + uint64(mem.PageSize-1)) >> mem.PageShift
		alloc.markRange(startFrame, endFrame, 0)
		return true
	})

	bytemapFrame := uint64(alloc.bytemapBase >> mem.PageShift)
	alloc.markRange(bytemapFrame, bytemapFrame+alloc.bytemapPages, 0)

	alloc.freeFrames = alloc.countFree()

	kfmt.Fprintf(&alloc.log, "bytemap placed at 0x%x (%d pages) tracking %d frames; %d/%d frames free\n",
		alloc.bytemapBase, alloc.bytemapPages, alloc.spanFrames, alloc.freeFrames, alloc.totalFrames,
	)

	return nil
}

// bytemapPagesFor returns the number of pages needed to store the bytemap.
// The bytemap needs one byte per frame up to spanFrames; the result is never
// smaller than one page per 4096 frames of total memory plus one.
func bytemapPagesFor(totalFrames, spanFrames uint64) uint64 {
	entriesPerPage := uint64(mem.PageSize)

	pages := (totalFrames+entriesPerPage-1)/entriesPerPage + 1
	if spanPages := (spanFrames + entriesPerPage - 1) / entriesPerPage; spanPages > pages {
		pages = spanPages
	}

	return pages
}

// placeBytemap selects the first usable region that can hold the bytemap.
func (alloc *BytemapAllocator) placeBytemap(mmap limine.MemoryMap) *kernel.Error {
	var placed bool

	mmap.Visit(func(region *limine.MemoryMapEntry) bool {
		if region.Type != limine.MemUsable {
			return true
		}

		start := (region.Base + uint64(mem.PageSize-1)) &^ uint64(mem.PageSize-1)
		end := region.End() &^ uint64(mem.PageSize-1)
		if end <= start || (end-start)>>mem.PageShift < alloc.bytemapPages {
			return true
		}

		alloc.bytemapBase = uintptr(start)
		placed = true
		return false
	})

	if !placed {
		return ErrBytemapNoRoom
	}

	return nil
}

// entry returns a pointer to the bytemap entry for frame. The bytemap
// address is translated on every call as the active translation regime may
// have changed since the previous access.
func (alloc *BytemapAllocator) entry(frame uint64) *uint8 {
	return (*uint8)(unsafe.Pointer(alloc.xlat.PhysToPointer(alloc.bytemapBase) + uintptr(frame)))
}

func (alloc *BytemapAllocator) isFree(frame uint64) bool {
	return *alloc.entry(frame)&frameStateMask == frameFree
}

func (alloc *BytemapAllocator) setState(frame uint64, state uint8) {
	e := alloc.entry(frame)
	*e = (*e &^ frameStateMask) | state
}

// markRange sets the state of frames in [startFrame, endFrame) clipped to the
// bytemap span.
func (alloc *BytemapAllocator) markRange(startFrame, endFrame uint64, state uint8) {
	if endFrame > alloc.spanFrames {
		endFrame = alloc.spanFrames
	}

	for frame := startFrame; frame < endFrame; frame++ {
		alloc.setState(frame, state)
	}
}

func (alloc *BytemapAllocator) countFree() uint64 {
	var count uint64
	for frame := uint64(0); frame < alloc.spanFrames; frame++ {
		if alloc.isFree(frame) {
			count++
		}
	}

	return count
}

// AllocFrames reserves count contiguous free frames and returns the first
// one. The scan starts at the frame following the previous allocation and
// wraps around to the start of the bytemap once it reaches the end. A run of
// frames never wraps past the end of the bytemap.
func (alloc *BytemapAllocator) AllocFrames(count int) (Frame, *kernel.Error) {
	if count < 1 {
		return InvalidFrame, ErrInvalidFrameCount
	}

	n := uint64(count)
	if n > alloc.freeFrames {
		return InvalidFrame, ErrOutOfMemory
	}

	start, found := alloc.findRun(alloc.cursor, alloc.spanFrames, n)
	if !found && alloc.cursor != 0 {
		// Runs starting before the cursor may extend past it.
		limit := alloc.cursor + n - 1
		if limit > alloc.spanFrames {
			limit = alloc.spanFrames
		}
		start, found = alloc.findRun(0, limit, n)
	}

	if !found {
		return InvalidFrame, ErrOutOfMemory
	}

	alloc.markRange(start, start+n, 0)
	alloc.freeFrames -= n
	alloc.cursor = start + n

	return Frame(start), nil
}

// findRun looks for n contiguous free frames that start at or after from and
// end at or before to.
func (alloc *BytemapAllocator) findRun(from, to, n uint64) (uint64, bool) {
	for frame := from; frame+n <= to; {
		var run uint64
		for run < n && alloc.isFree(frame+run) {
			run++
		}

		if run == n {
			return frame, true
		}

		// Skip past the used frame that ended the run.
		frame += run + 1
	}

	return 0, false
}

// AllocFrame reserves a single free frame.
func (alloc *BytemapAllocator) AllocFrame() (Frame, *kernel.Error) {
	return alloc.AllocFrames(1)
}

// FreeFrame marks frame as free. Frames are not coalesced and freeing a frame
// that is already free is not detected.
func (alloc *BytemapAllocator) FreeFrame(frame Frame) *kernel.Error {
	if !frame.Valid() || uint64(frame) >= alloc.spanFrames {
		return ErrFrameOutOfRange
	}

	if !alloc.isFree(uint64(frame)) {
		alloc.freeFrames++
	}
	alloc.setState(uint64(frame), frameFree)
	return nil
}

// FreeAddress marks the frame that contains physAddr as free.
func (alloc *BytemapAllocator) FreeAddress(physAddr uintptr) *kernel.Error {
	return alloc.FreeFrame(FrameFromAddress(physAddr))
}

// IsFree returns true if frame is tracked by the bytemap and marked free.
func (alloc *BytemapAllocator) IsFree(frame Frame) bool {
	return frame.Valid() && uint64(frame) < alloc.spanFrames && alloc.isFree(uint64(frame))
}

// FreeFrameCount returns the number of free frames.
func (alloc *BytemapAllocator) FreeFrameCount() uint64 {
	return alloc.freeFrames
}

// TotalFrames returns the number of frames covered by all memory map entries.
func (alloc *BytemapAllocator) TotalFrames() uint64 {
	return alloc.totalFrames
}

// SpanFrames returns the number of frames tracked by the bytemap.
func (alloc *BytemapAllocator) SpanFrames() uint64 {
	return alloc.spanFrames
}

// BytemapBase returns the physical address of the bytemap.
func (alloc *BytemapAllocator) BytemapBase() uintptr {
	return alloc.bytemapBase
}

// BytemapPages returns the number of frames backing the bytemap.
func (alloc *BytemapAllocator) BytemapPages() uint64 {
	return alloc.bytemapPages
}
