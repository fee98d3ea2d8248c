package kmem

import (
	"bytes"

	"kernos/internal/physmem"
	"kernos/kernel"
	"kernos/kernel/cpu/mock_cpu"
	"kernos/kernel/hal/limine"
	"kernos/kernel/mem"
	"kernos/kernel/mem/physmap"
	"kernos/kernel/mem/pmm"
	"kernos/kernel/mem/vmm"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

// testMemoryMap describes a 16Mb machine. The boot loader stack lives in the
// reclaimable region and the kernel image occupies the kernel region.
func testMemoryMap() limine.MemoryMap {
	return limine.MemoryMap{
		{Base: 0x0, Length: 0x1000, Type: limine.MemReserved},
		{Base: 0x1000, Length: 0x9e000, Type: limine.MemUsable},
		{Base: 0x100000, Length: 0x400000, Type: limine.MemUsable},
		{Base: 0x500000, Length: 0x100000, Type: limine.MemBootloaderReclaimable},
		{Base: 0x600000, Length: 0x200000, Type: limine.MemKernelAndModules},
		{Base: 0x800000, Length: 0x800000, Type: limine.MemUsable},
	}
}

const (
	usableFrames   = 158 + 1024 + 2048
	mappedFrames   = 1 + 158 + 1024 + 256 + 512 + 2048
	stackPhysAddr  = uintptr(0x5f0000)
	kernelPhysBase = uintptr(0x600000)
)

var _ = ginkgo.Describe("Context", func() {
	var (
		mockCtrl *gomock.Controller
		hw       *mock_cpu.MockHardware
		arena    *physmem.Arena
		info     *limine.BootInfo
		ctx      *Context
		log      *bytes.Buffer
	)

	ginkgo.BeforeEach(func() {
		var err error
		arena, err = physmem.New(16 * mem.Mb)
		Expect(err).NotTo(HaveOccurred())

		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		hw = mock_cpu.NewMockHardware(mockCtrl)

		// Both the direct map and the kernel window point at the arena
		info = &limine.BootInfo{
			MemoryMap: testMemoryMap(),
			KernelAddress: &limine.KernelAddress{
				PhysicalBase: uint64(kernelPhysBase),
				VirtualBase:  uint64(vmm.HigherHalfBase),
			},
			HHDMOffset:   uint64(arena.Base()),
			StackPointer: arena.Base() + stackPhysAddr,
		}
		ctx = new(Context)
		log = new(bytes.Buffer)
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
		Expect(arena.Close()).To(Succeed())
	})

	initContext := func(opts ...Option) *kernel.Error {
		return ctx.Init(info, hw, log, append([]Option{WithKernelWindowOffset(arena.Base())}, opts...)...)
	}

	ginkgo.When("the boot information is complete", func() {
		ginkgo.BeforeEach(func() {
			hw.EXPECT().LoadRootTable(uintptr(0x3000)).Do(func(_ uintptr) {
				Expect(ctx.Translator().Regime()).To(Equal(physmap.RegimeBootOwned))
			})
		})

		ginkgo.It("should hand off to the kernel tables", func() {
			Expect(initContext()).To(BeNil())

			Expect(ctx.Translator().Regime()).To(Equal(physmap.RegimeKernelOwned))
			Expect(ctx.Tables().State()).To(Equal(vmm.StateKernelOwned))
			Expect(ctx.Tables().RootAddress()).To(Equal(uintptr(0x3000)))

			Expect(ctx.Frames().BytemapBase()).To(Equal(uintptr(0x1000)))
			Expect(ctx.Frames().BytemapPages()).To(Equal(uint64(2)))
			Expect(ctx.Frames().TotalFrames()).To(Equal(uint64(mappedFrames)))
			Expect(ctx.Frames().FreeFrameCount()).To(BeNumerically("<", usableFrames-2), "page tables are allocated from free frames")
		})

		ginkgo.It("should map the kernel image at its link address", func() {
			Expect(initContext()).To(BeNil())

			for _, page := range []uintptr{0, 1, 511} {
				pte, err := ctx.Lookup(vmm.HigherHalfBase + page<<mem.PageShift)
				Expect(err).To(BeNil())
				Expect(pte.Address()).To(Equal(kernelPhysBase + page<<mem.PageShift))
				Expect(pte.HasFlags(vmm.FlagPresent | vmm.FlagRW)).To(BeTrue())
				Expect(pte.HasFlags(vmm.FlagNoExecute)).To(BeFalse(), "kernel text must stay executable")
			}

			_, err := ctx.Lookup(vmm.HigherHalfBase + 512<<mem.PageShift)
			Expect(err).To(Equal(vmm.ErrInvalidMapping))
		})

		ginkgo.It("should map the stack at its direct map address", func() {
			Expect(initContext()).To(BeNil())

			physAddr, err := ctx.Translate(info.StackPointer + 0x18)
			Expect(err).To(BeNil())
			Expect(physAddr).To(Equal(stackPhysAddr + 0x18))

			for _, offset := range []uintptr{0x5e0000, 0x5ff000} {
				pte, err := ctx.Lookup(arena.Base() + offset)
				Expect(err).To(BeNil(), "offset 0x%x", offset)
				Expect(pte.HasFlags(vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute)).To(BeTrue())
			}

			_, err = ctx.Lookup(arena.Base() + 0x5df000)
			Expect(err).To(Equal(vmm.ErrInvalidMapping))
		})

		ginkgo.It("should honor the stack size option", func() {
			Expect(initContext(WithStackSize(8 * mem.Kb))).To(BeNil())

			_, err := ctx.Lookup(arena.Base() + 0x5ee000)
			Expect(err).To(BeNil())
			_, err = ctx.Lookup(arena.Base() + 0x5ed000)
			Expect(err).To(Equal(vmm.ErrInvalidMapping))
			_, err = ctx.Lookup(arena.Base() + 0x5f2000)
			Expect(err).To(Equal(vmm.ErrInvalidMapping))
		})

		ginkgo.It("should skip stacks that live in the kernel image", func() {
			info.StackPointer = vmm.HigherHalfBase + 0x10000
			Expect(initContext()).To(BeNil())

			Expect(log.String()).NotTo(ContainSubstring("stack mapped"))
			_, err := ctx.Lookup(arena.Base() + stackPhysAddr)
			Expect(err).To(Equal(vmm.ErrInvalidMapping))
		})

		ginkgo.It("should keep the bytemap reachable after the switch", func() {
			Expect(initContext()).To(BeNil())

			for page := uintptr(0); page < 2; page++ {
				pte, err := ctx.Lookup(arena.Base() + 0x1000 + page<<mem.PageShift)
				Expect(err).To(BeNil())
				Expect(pte.Address()).To(Equal(0x1000 + page<<mem.PageShift))
			}

			free := ctx.Frames().FreeFrameCount()
			frame, err := ctx.AllocFrame()
			Expect(err).To(BeNil())
			Expect(ctx.Frames().IsFree(frame)).To(BeFalse())
			Expect(ctx.Frames().FreeFrameCount()).To(Equal(free - 1))

			Expect(ctx.FreeFrame(frame)).To(BeNil())
			Expect(ctx.Frames().FreeFrameCount()).To(Equal(free))
			Expect(ctx.PhysToPointer(frame.Address())).To(Equal(arena.Base() + frame.Address()))
		})

		ginkgo.It("should report each stage", func() {
			Expect(initContext()).To(BeNil())

			output := log.String()
			Expect(output).To(HavePrefix("[pmm] bytemap placed at 0x1000 (2 pages) tracking 4096 frames; 3228/3999 frames free\n[vmm] root table allocated at 0x3000\n"))
			Expect(output).To(ContainSubstring("[kmem] kernel image mapped: 0xffffffff80000000 -> 0x600000 (512 pages)\n"))
			Expect(output).To(ContainSubstring("[kmem] stack mapped: "))
			Expect(output).To(ContainSubstring("[kmem] bytemap mapped at "))
			Expect(output).To(ContainSubstring("[vmm] root table activated at 0x3000\n"))
			Expect(output).To(MatchRegexp(`\[kmem\] hand-off complete; \d+/3999 frames free\n$`))
		})

		ginkgo.It("should flush replaced mappings once the kernel tables are active", func() {
			Expect(initContext()).To(BeNil())

			// Mapping an identical entry is a no-op
			Expect(ctx.Map(kernelPhysBase, vmm.HigherHalfBase, vmm.FlagPresent|vmm.FlagRW)).To(BeNil())
			Expect(ctx.Map(0x900000, vmm.HigherHalfBase, vmm.FlagPresent)).To(Equal(vmm.ErrRemap))

			hw.EXPECT().FlushTLBEntry(vmm.HigherHalfBase + 0x1000)
			Expect(ctx.Tables().Remap(0x900000, vmm.HigherHalfBase+0x1000, vmm.FlagPresent)).To(BeNil())

			physAddr, err := ctx.Translate(vmm.HigherHalfBase + 0x1234)
			Expect(err).To(BeNil())
			Expect(physAddr).To(Equal(uintptr(0x900234)))
		})

		ginkgo.It("should reject a second Init", func() {
			Expect(initContext()).To(BeNil())
			Expect(initContext()).To(Equal(ErrAlreadyInitialized))
		})

		ginkgo.It("should allow Init to be retried after a failed hand-off", func() {
			kernelAddr := *info.KernelAddress
			info.KernelAddress.PhysicalBase = 0x900000
			Expect(initContext()).To(Equal(limine.ErrNoKernelRegion))
			Expect(ctx.Tables().State()).To(Equal(vmm.StateBootOwned))

			info.KernelAddress = &kernelAddr
			log.Reset()
			Expect(initContext()).To(BeNil())

			Expect(ctx.Tables().State()).To(Equal(vmm.StateKernelOwned))
			Expect(ctx.Tables().RootAddress()).To(Equal(uintptr(0x3000)))
			Expect(log.String()).To(HavePrefix("[pmm] bytemap placed at 0x1000 (2 pages) tracking 4096 frames; 3228/3999 frames free\n"))
			Expect(initContext()).To(Equal(ErrAlreadyInitialized))
		})

		ginkgo.It("should serialize concurrent allocations", func() {
			Expect(initContext()).To(BeNil())

			const (
				workers         = 8
				framesPerWorker = 32
			)

			frames := make(chan pmm.Frame, workers*framesPerWorker)
			done := make(chan struct{})
			for i := 0; i < workers; i++ {
				go func() {
					defer ginkgo.GinkgoRecover()
					for j := 0; j < framesPerWorker; j++ {
						frame, err := ctx.AllocFrame()
						Expect(err).To(BeNil())
						frames <- frame
					}
					done <- struct{}{}
				}()
			}
			for i := 0; i < workers; i++ {
				<-done
			}
			close(frames)

			seen := make(map[pmm.Frame]bool)
			for frame := range frames {
				Expect(seen).NotTo(HaveKey(frame))
				seen[frame] = true
			}
			Expect(seen).To(HaveLen(workers * framesPerWorker))
		})
	})

	ginkgo.When("a boot precondition is not met", func() {
		ginkgo.It("should fail without touching the hardware", func() {
			specs := []struct {
				mutate func(*limine.BootInfo)
				expErr *kernel.Error
			}{
				{func(bi *limine.BootInfo) { bi.MemoryMap = nil }, limine.ErrNoMemoryMap},
				{func(bi *limine.BootInfo) { bi.KernelAddress = nil }, limine.ErrNoKernelAddress},
				{func(bi *limine.BootInfo) { bi.HHDMOffset = 0 }, limine.ErrNoHHDMOffset},
				{func(bi *limine.BootInfo) { bi.StackPointer = 0 }, ErrNoStackPointer},
				{func(bi *limine.BootInfo) { bi.KernelAddress.PhysicalBase = 0x900000 }, limine.ErrNoKernelRegion},
				{func(bi *limine.BootInfo) { bi.StackPointer = 0x1000 }, ErrStackOutsideDirectMap},
				{func(bi *limine.BootInfo) {
					bi.MemoryMap = limine.MemoryMap{{Base: 0x1000, Length: 0x1000, Type: limine.MemUsable}}
				}, pmm.ErrBytemapNoRoom},
			}

			for specIndex, spec := range specs {
				bi := *info
				kernelAddr := *info.KernelAddress
				bi.KernelAddress = &kernelAddr
				spec.mutate(&bi)

				ctx = new(Context)
				err := ctx.Init(&bi, hw, log, WithKernelWindowOffset(arena.Base()))
				Expect(err).To(Equal(spec.expErr), "[spec %d]", specIndex)
				Expect(err.Kind).To(Equal(kernel.KindBootstrapUnsatisfiable), "[spec %d]", specIndex)
			}
		})
	})
})
