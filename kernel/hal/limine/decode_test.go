package limine

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	entries := []MemoryMapEntry{
		{Base: 0x0, Length: 0x9f000, Type: MemUsable},
		{Base: 0x100000, Length: 0x3dd8000, Type: MemUsable},
		{Base: 0x3f58000, Length: 0x4e000, Type: MemKernelAndModules},
	}
	entryPtrs := make([]uintptr, len(entries))
	for i := range entries {
		entryPtrs[i] = uintptr(unsafe.Pointer(&entries[i]))
	}

	memmap := memmapResponse{entryCount: uint64(len(entries)), entries: uintptr(unsafe.Pointer(&entryPtrs[0]))}
	hhdm := hhdmResponse{offset: 0xffff800000000000}
	kernelAddr := kernelAddressResponse{physicalBase: 0x3f58000, virtualBase: 0xffffffff80000000}

	info := Decode(Responses{
		Memmap:        uintptr(unsafe.Pointer(&memmap)),
		HHDM:          uintptr(unsafe.Pointer(&hhdm)),
		KernelAddress: uintptr(unsafe.Pointer(&kernelAddr)),
		StackSize:     0x10000,
	})

	require.Nil(t, info.Validate())
	assert.Equal(t, MemoryMap(entries), info.MemoryMap)
	assert.Equal(t, uint64(0xffff800000000000), info.HHDMOffset)
	assert.Equal(t, KernelAddress{PhysicalBase: 0x3f58000, VirtualBase: 0xffffffff80000000}, *info.KernelAddress)
	assert.EqualValues(t, 0x10000, info.StackSize)
}

func TestDecodeMissingResponses(t *testing.T) {
	info := Decode(Responses{})

	assert.Empty(t, info.MemoryMap)
	assert.Nil(t, info.KernelAddress)
	assert.Zero(t, info.HHDMOffset)
	assert.Equal(t, ErrNoMemoryMap, info.Validate())
}
