package physmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hhdmOffset   = uintptr(0xffff800000000000)
	windowOffset = uintptr(0xffffc00000000000)
)

func TestTranslatorBootOwned(t *testing.T) {
	xlat := New(hhdmOffset, windowOffset)

	assert.Equal(t, RegimeBootOwned, xlat.Regime())
	assert.Equal(t, hhdmOffset, xlat.BootOffset())
	assert.Equal(t, windowOffset, xlat.KernelOffset())

	specs := []struct {
		phys, ptr uintptr
	}{
		{0x0, 0xffff800000000000},
		{0x1000, 0xffff800000001000},
		{0x3ed7fff, 0xffff800003ed7fff},
	}

	for specIndex, spec := range specs {
		assert.Equal(t, spec.ptr, xlat.PhysToPointer(spec.phys), "[spec %d]", specIndex)
		assert.Equal(t, spec.phys, xlat.PointerToPhys(spec.ptr), "[spec %d]", specIndex)
	}
}

func TestTranslatorSwitchRegime(t *testing.T) {
	xlat := New(hhdmOffset, windowOffset)

	var regimeDuringLoad Regime = 0xff
	err := xlat.SwitchRegime(func() {
		regimeDuringLoad = xlat.Regime()
	})
	require.Nil(t, err)

	assert.Equal(t, RegimeBootOwned, regimeDuringLoad, "the flip must happen after the root load")
	assert.Equal(t, RegimeKernelOwned, xlat.Regime())
	assert.Equal(t, uintptr(0xffffc00000200000), xlat.PhysToPointer(0x200000))
	assert.Equal(t, uintptr(0x200000), xlat.PointerToPhys(0xffffc00000200000))

	t.Run("second switch", func(t *testing.T) {
		var called bool
		err := xlat.SwitchRegime(func() { called = true })

		assert.Equal(t, ErrRegimeAlreadyKernel, err)
		assert.False(t, called)
		assert.Equal(t, RegimeKernelOwned, xlat.Regime())
	})
}

func TestRegimeString(t *testing.T) {
	assert.Equal(t, "boot-owned", RegimeBootOwned.String())
	assert.Equal(t, "kernel-owned", RegimeKernelOwned.String())
}
