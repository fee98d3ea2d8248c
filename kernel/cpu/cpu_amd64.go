package cpu

// Halt disables interrupts and stops instruction execution. Halt never
// returns.
func Halt()

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)
