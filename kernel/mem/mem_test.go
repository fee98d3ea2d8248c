package mem

import "testing"

func TestSizeToPages(t *testing.T) {
	specs := []struct {
		size     Size
		expPages uint64
	}{
		{0, 0},
		{1 * Byte, 1},
		{PageSize, 1},
		{PageSize + 1, 2},
		{1023 * Kb, 256},
		{1024 * Kb, 256},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.expPages {
			t.Errorf("[spec %d] expected Pages(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expPages, got)
		}
	}
}

func TestPageAlignment(t *testing.T) {
	specs := []struct {
		addr         uintptr
		expDown      uintptr
		expUp        uintptr
		expIsAligned bool
	}{
		{0, 0, 0, true},
		{1, 0, 0x1000, false},
		{0x1000, 0x1000, 0x1000, true},
		{0x1fff, 0x1000, 0x2000, false},
		{0xffffffff80000123, 0xffffffff80000000, 0xffffffff80001000, false},
	}

	for specIndex, spec := range specs {
		if got := PageAlignDown(spec.addr); got != spec.expDown {
			t.Errorf("[spec %d] expected PageAlignDown(0x%x) to be 0x%x; got 0x%x", specIndex, spec.addr, spec.expDown, got)
		}
		if got := PageAlignUp(spec.addr); got != spec.expUp {
			t.Errorf("[spec %d] expected PageAlignUp(0x%x) to be 0x%x; got 0x%x", specIndex, spec.addr, spec.expUp, got)
		}
		if got := IsPageAligned(spec.addr); got != spec.expIsAligned {
			t.Errorf("[spec %d] expected IsPageAligned(0x%x) to be %t; got %t", specIndex, spec.addr, spec.expIsAligned, got)
		}
	}
}
