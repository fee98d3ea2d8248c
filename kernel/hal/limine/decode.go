package limine

import (
	"unsafe"

	"kernos/kernel/mem"
)

// maxMemoryMapEntries bounds the number of memory map entries that Decode
// copies out of the loader response.
const maxMemoryMapEntries = 256

// memmapResponse mirrors struct limine_memmap_response.
type memmapResponse struct {
	revision   uint64
	entryCount uint64
	entries    uintptr
}

// hhdmResponse mirrors struct limine_hhdm_response.
type hhdmResponse struct {
	revision uint64
	offset   uint64
}

// kernelAddressResponse mirrors struct limine_kernel_address_response.
type kernelAddressResponse struct {
	revision     uint64
	physicalBase uint64
	virtualBase  uint64
}

// Responses holds the addresses of the loader response structures as found
// in the request blocks embedded in the kernel image. A zero address means
// that the loader did not answer the request.
type Responses struct {
	Memmap        uintptr
	HHDM          uintptr
	KernelAddress uintptr

	// StackSize is the value placed in the stack size request.
	StackSize mem.Size
}

var (
	// The decoded boot information lives in static storage as no
	// allocator is available when Decode runs.
	decodedInfo          BootInfo
	decodedKernelAddress KernelAddress
	decodedEntries       [maxMemoryMapEntries]MemoryMapEntry
)

// Decode converts the raw loader responses into a BootInfo. Missing
// responses leave the matching BootInfo fields zeroed so that
// BootInfo.Validate can report them. Memory map entries beyond
// maxMemoryMapEntries are dropped.
func Decode(resp Responses) *BootInfo {
	decodedInfo = BootInfo{StackSize: resp.StackSize}

	if resp.Memmap != 0 {
		hdr := (*memmapResponse)(unsafe.Pointer(resp.Memmap))
		count := hdr.entryCount
		if count > maxMemoryMapEntries {
			count = maxMemoryMapEntries
		}

		// entries points to an array of pointers to the actual entries
		for i := uint64(0); i < count; i++ {
			entryPtr := *(*uintptr)(unsafe.Pointer(hdr.entries + uintptr(i)<<mem.PointerShift))
			decodedEntries[i] = *(*MemoryMapEntry)(unsafe.Pointer(entryPtr))
		}
		decodedInfo.MemoryMap = decodedEntries[:count]
	}

	if resp.HHDM != 0 {
		decodedInfo.HHDMOffset = (*hhdmResponse)(unsafe.Pointer(resp.HHDM)).offset
	}

	if resp.KernelAddress != 0 {
		hdr := (*kernelAddressResponse)(unsafe.Pointer(resp.KernelAddress))
		decodedKernelAddress = KernelAddress{
			PhysicalBase: hdr.physicalBase,
			VirtualBase:  hdr.virtualBase,
		}
		decodedInfo.KernelAddress = &decodedKernelAddress
	}

	return &decodedInfo
}
