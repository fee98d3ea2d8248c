// Package cpu isolates the privileged instructions used by the memory core
// behind a narrow interface so that the code driving them can be exercised
// off real hardware.
package cpu

//go:generate go run go.uber.org/mock/mockgen -destination "mock_cpu/mock_cpu.go" kernos/kernel/cpu Hardware

// Hardware describes the processor operations required by the memory
// manager and the early diagnostics transport.
type Hardware interface {
	// LoadRootTable installs the page table hierarchy rooted at the
	// supplied physical address and flushes the TLB.
	LoadRootTable(physAddr uintptr)

	// FlushTLBEntry invalidates the TLB entry for a virtual address.
	FlushTLBEntry(virtAddr uintptr)

	// ReadPort8 reads a byte from an I/O port.
	ReadPort8(port uint16) uint8

	// WritePort8 writes a byte to an I/O port.
	WritePort8(port uint16, val uint8)
}

// Native implements Hardware using the actual processor instructions. Its
// methods fault if invoked outside ring 0.
type Native struct{}

// LoadRootTable implements Hardware.
func (Native) LoadRootTable(physAddr uintptr) { SwitchPDT(physAddr) }

// FlushTLBEntry implements Hardware.
func (Native) FlushTLBEntry(virtAddr uintptr) { FlushTLBEntry(virtAddr) }

// ReadPort8 implements Hardware.
func (Native) ReadPort8(port uint16) uint8 { return PortReadByte(port) }

// WritePort8 implements Hardware.
func (Native) WritePort8(port uint16, val uint8) { PortWriteByte(port, val) }
