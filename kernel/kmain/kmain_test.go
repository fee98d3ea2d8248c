package kmain

import (
	"strings"
	"testing"

	"kernos/internal/physmem"
	"kernos/kernel/cpu/mock_cpu"
	"kernos/kernel/driver/serial"
	"kernos/kernel/hal/limine"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
	"kernos/kernel/mem/kmem"
	"kernos/kernel/mem/vmm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type kmainEnv struct {
	arena  *physmem.Arena
	hw     *mock_cpu.MockHardware
	info   *limine.BootInfo
	serial strings.Builder
	panics []interface{}
}

// newKmainEnv boots Kmain on 16Mb of simulated memory. The mocked serial port
// passes its loopback test and is always ready to transmit.
func newKmainEnv(t *testing.T) *kmainEnv {
	arena, err := physmem.New(16 * mem.Mb)
	require.NoError(t, err)

	env := &kmainEnv{
		arena: arena,
		hw:    mock_cpu.NewMockHardware(gomock.NewController(t)),
		info: &limine.BootInfo{
			MemoryMap: limine.MemoryMap{
				{Base: 0x0, Length: 0x1000, Type: limine.MemReserved},
				{Base: 0x1000, Length: 0x9e000, Type: limine.MemUsable},
				{Base: 0x100000, Length: 0x400000, Type: limine.MemUsable},
				{Base: 0x500000, Length: 0x100000, Type: limine.MemBootloaderReclaimable},
				{Base: 0x600000, Length: 0x200000, Type: limine.MemKernelAndModules},
				{Base: 0x800000, Length: 0x800000, Type: limine.MemUsable},
			},
			KernelAddress: &limine.KernelAddress{PhysicalBase: 0x600000, VirtualBase: uint64(vmm.HigherHalfBase)},
			HHDMOffset:    uint64(arena.Base()),
			StackPointer:  arena.Base() + 0x5f0000,
		},
	}

	env.hw.EXPECT().ReadPort8(serial.COM1).Return(uint8(0xae)).AnyTimes()
	env.hw.EXPECT().ReadPort8(serial.COM1 + 5).Return(uint8(0x20)).AnyTimes()
	env.hw.EXPECT().WritePort8(gomock.Any(), gomock.Any()).DoAndReturn(func(port uint16, val uint8) {
		if port == serial.COM1 && val != 0xae && val != 0x03 {
			env.serial.WriteByte(val)
		}
	}).AnyTimes()

	origHw, origOptions, origPanicFn := hw, memOptions, panicFn
	hw = env.hw
	memOptions = []kmem.Option{kmem.WithKernelWindowOffset(arena.Base())}
	panicFn = func(e interface{}) {
		env.panics = append(env.panics, e)
	}
	memCtx = kmem.Context{}

	t.Cleanup(func() {
		hw, memOptions, panicFn = origHw, origOptions, origPanicFn
		kfmt.SetOutputSink(nil)
		_ = arena.Close()
	})

	return env
}

func TestKmain(t *testing.T) {
	env := newKmainEnv(t)
	env.hw.EXPECT().LoadRootTable(uintptr(0x3000))

	Kmain(env.info)

	require.Len(t, env.panics, 1)
	assert.Equal(t, errKmainReturned, env.panics[0])
	assert.Equal(t, vmm.StateKernelOwned, memCtx.Tables().State())

	output := env.serial.String()
	assert.True(t, strings.HasPrefix(output, "Starting kernos\r\nsystem memory map:\r\n"), output)
	assert.Contains(t, output, "type: kernel and modules\r\n")
	assert.Contains(t, output, "[pmm] bytemap placed at 0x1000 (2 pages) tracking 4096 frames; 3228/3999 frames free\r\n")
	assert.Contains(t, output, "[vmm] root table activated at 0x3000\r\n")
}

func TestKmainPanicsOnMissingBootInfo(t *testing.T) {
	env := newKmainEnv(t)
	env.info.MemoryMap = nil

	Kmain(env.info)

	require.Len(t, env.panics, 1)
	assert.Equal(t, limine.ErrNoMemoryMap, env.panics[0])
	assert.Equal(t, vmm.StateUninitialized, memCtx.Tables().State())
}

func TestKmainCapturesStackPointer(t *testing.T) {
	env := newKmainEnv(t)
	env.info.StackPointer = 0

	// The test goroutine stack is not reachable through the simulated
	// direct map so the hand-off stops before activation.
	Kmain(env.info)

	assert.NotZero(t, env.info.StackPointer)
	require.Len(t, env.panics, 1)
	assert.NotEqual(t, kmem.ErrNoStackPointer, env.panics[0])
}
