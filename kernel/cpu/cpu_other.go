//go:build !amd64

package cpu

// The memory core only targets amd64. These stubs keep the package
// buildable on other hosts where Native is never used.

// Halt stops instruction execution.
func Halt() { panic("cpu: Halt is only supported on amd64") }

// SwitchPDT sets the root page table directory.
func SwitchPDT(_ uintptr) { panic("cpu: SwitchPDT is only supported on amd64") }

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(_ uintptr) { panic("cpu: FlushTLBEntry is only supported on amd64") }

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(_ uint16) uint8 { panic("cpu: PortReadByte is only supported on amd64") }

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(_ uint16, _ uint8) { panic("cpu: PortWriteByte is only supported on amd64") }
